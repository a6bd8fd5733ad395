package aws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"

	"secretsift/internal/logging"
	"secretsift/internal/version"
)

// requestTimeout bounds a single HTTP round trip to the inventory API
const requestTimeout = 60 * time.Second

// NewSession creates a new AWS session with the specified profile and region
func NewSession(profile string, region string) (*session.Session, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}

	// Create session options with profile
	opts := session.Options{
		Config:            *cfg,
		Profile:           profile,
		SharedConfigState: session.SharedConfigEnable,
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session for profile %s: %w", profile, err)
	}
	addUserAgent(sess)

	logging.Debug("Created AWS session", map[string]interface{}{
		"profile": profile,
		"region":  region,
	})
	return sess, nil
}

// GetSessionInRegion creates a new session in the specified region using credentials from an existing session.
// The returned session shares nothing mutable with sess, so each region can own one.
func GetSessionInRegion(sess *session.Session, region string) (*session.Session, error) {
	if region == "" {
		return sess, nil
	}

	httpClient := &http.Client{
		Timeout: requestTimeout,
	}

	// Copy the config so the base session is never mutated by a region
	cfg := sess.Config.Copy().WithRegion(region).WithHTTPClient(httpClient)
	newSess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session in region %s: %w", region, err)
	}
	addUserAgent(newSess)
	return newSess, nil
}

// addUserAgent tags every request of sess with the tool name and version
func addUserAgent(sess *session.Session) {
	name, v := version.UserAgent()
	sess.Handlers.Build.PushBack(request.MakeAddToUserAgentHandler(name, v))
}
