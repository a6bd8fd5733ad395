package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"

	"secretsift/internal/aws/ratelimit"
	"secretsift/internal/config"
	"secretsift/internal/logging"
)

// errCodeInstanceNotFound is returned when an instance disappears between listing and lookup
const errCodeInstanceNotFound = "InvalidInstanceID.NotFound"

// userDataValueKey is the single field carried by the EC2 userData attribute
const userDataValueKey = "Value"

// Pagination controls page sizes and the page cap of every listing call
type Pagination struct {
	MaxPages         int
	InstancePageSize int
	TagPageSize      int
	TemplatePageSize int
}

// PaginationFromConfig extracts the pagination settings from cfg
func PaginationFromConfig(cfg *config.GlobalConfig) Pagination {
	return Pagination{
		MaxPages:         cfg.MaxPages,
		InstancePageSize: cfg.InstancePageSize,
		TagPageSize:      cfg.TagPageSize,
		TemplatePageSize: cfg.TemplatePageSize,
	}
}

// EC2Inventory implements Inventory against the EC2 API of a single region
type EC2Inventory struct {
	client  ec2iface.EC2API
	region  string
	limiter *ratelimit.ServiceLimiter
	pages   Pagination
}

// NewEC2Inventory creates an inventory over client. The limiter must not be shared with another region.
func NewEC2Inventory(client ec2iface.EC2API, region string, limiter *ratelimit.ServiceLimiter, pages Pagination) *EC2Inventory {
	if pages.MaxPages <= 0 {
		pages.MaxPages = 1
	}
	return &EC2Inventory{
		client:  client,
		region:  region,
		limiter: limiter,
		pages:   pages,
	}
}

// NewEC2InventoryForRegion creates an inventory with its own session, client and limiter bound to region
func NewEC2InventoryForRegion(base *session.Session, region string, cfg *config.GlobalConfig) (*EC2Inventory, error) {
	sess, err := GetSessionInRegion(base, region)
	if err != nil {
		return nil, err
	}
	return NewEC2Inventory(ec2.New(sess), region, ratelimit.NewServiceLimiter(cfg.RateLimit), PaginationFromConfig(cfg)), nil
}

// pageCounter stops pagination once max pages have been read
type pageCounter struct {
	seen int
	max  int
}

func (p *pageCounter) next() bool {
	p.seen++
	return p.seen < p.max
}

func (p *pageCounter) warnIfCapped(region, api string, lastPage bool) {
	if p.seen >= p.max && !lastPage {
		logging.Warn("Page limit reached, results truncated", map[string]interface{}{
			"region":    region,
			"api":       api,
			"max_pages": p.max,
		})
	}
}

// ListRegions returns the regions enabled for the account
func (e *EC2Inventory) ListRegions(ctx context.Context) ([]string, error) {
	var out *ec2.DescribeRegionsOutput
	err := e.limiter.Execute(ctx, "DescribeRegions", func() error {
		var err error
		out, err = e.client.DescribeRegionsWithContext(ctx, &ec2.DescribeRegionsInput{
			AllRegions: aws.Bool(false), // Only get enabled regions
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, region := range out.Regions {
		regions = append(regions, aws.StringValue(region.RegionName))
	}
	return regions, nil
}

// ListInstances returns running and stopped instances
func (e *EC2Inventory) ListInstances(ctx context.Context) ([]Instance, error) {
	input := &ec2.DescribeInstancesInput{
		MaxResults: aws.Int64(int64(e.pages.InstancePageSize)),
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: aws.StringSlice([]string{ec2.InstanceStateNameRunning, ec2.InstanceStateNameStopped}),
			},
		},
	}

	var instances []Instance
	err := e.limiter.Execute(ctx, "DescribeInstances", func() error {
		instances = nil
		pages := &pageCounter{max: e.pages.MaxPages}
		return e.client.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
			for _, reservation := range page.Reservations {
				for _, inst := range reservation.Instances {
					instance := Instance{
						ID:   aws.StringValue(inst.InstanceId),
						Type: aws.StringValue(inst.InstanceType),
					}
					if inst.State != nil {
						instance.State = aws.StringValue(inst.State.Name)
					}
					instances = append(instances, instance)
				}
			}
			more := pages.next()
			pages.warnIfCapped(e.region, "DescribeInstances", lastPage)
			return more
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}
	return instances, nil
}

// GetUserData returns the user-data fields of an instance.
// An instance that no longer exists yields a NotFound result rather than an error.
func (e *EC2Inventory) GetUserData(ctx context.Context, instanceID string) (UserDataResult, error) {
	var out *ec2.DescribeInstanceAttributeOutput
	err := e.limiter.Execute(ctx, "DescribeInstanceAttribute", func() error {
		var err error
		out, err = e.client.DescribeInstanceAttributeWithContext(ctx, &ec2.DescribeInstanceAttributeInput{
			Attribute:  aws.String(ec2.InstanceAttributeNameUserData),
			InstanceId: aws.String(instanceID),
		})
		return err
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == errCodeInstanceNotFound {
			return UserDataResult{Status: NotFound}, nil
		}
		return UserDataResult{}, fmt.Errorf("failed to describe user data of %s: %w", instanceID, err)
	}

	result := UserDataResult{Status: Found}
	if out.UserData != nil && out.UserData.Value != nil {
		result.Fields = append(result.Fields, UserDataField{
			Key: userDataValueKey,
			Raw: aws.StringValue(out.UserData.Value),
		})
	}
	return result, nil
}

// ListNameTags maps instance ids to their Name tag
func (e *EC2Inventory) ListNameTags(ctx context.Context) (map[string]string, error) {
	input := &ec2.DescribeTagsInput{
		MaxResults: aws.Int64(int64(e.pages.TagPageSize)),
		Filters: []*ec2.Filter{
			{Name: aws.String("resource-type"), Values: aws.StringSlice([]string{"instance"})},
			{Name: aws.String("key"), Values: aws.StringSlice([]string{"Name"})},
		},
	}

	var names map[string]string
	err := e.limiter.Execute(ctx, "DescribeTags", func() error {
		names = make(map[string]string)
		pages := &pageCounter{max: e.pages.MaxPages}
		return e.client.DescribeTagsPagesWithContext(ctx, input, func(page *ec2.DescribeTagsOutput, lastPage bool) bool {
			for _, tag := range page.Tags {
				names[aws.StringValue(tag.ResourceId)] = aws.StringValue(tag.Value)
			}
			more := pages.next()
			pages.warnIfCapped(e.region, "DescribeTags", lastPage)
			return more
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe tags: %w", err)
	}
	return names, nil
}

// ListLaunchTemplates returns every launch template
func (e *EC2Inventory) ListLaunchTemplates(ctx context.Context) ([]LaunchTemplate, error) {
	input := &ec2.DescribeLaunchTemplatesInput{
		MaxResults: aws.Int64(int64(e.pages.TemplatePageSize)),
	}

	var templates []LaunchTemplate
	err := e.limiter.Execute(ctx, "DescribeLaunchTemplates", func() error {
		templates = nil
		pages := &pageCounter{max: e.pages.MaxPages}
		return e.client.DescribeLaunchTemplatesPagesWithContext(ctx, input, func(page *ec2.DescribeLaunchTemplatesOutput, lastPage bool) bool {
			for _, lt := range page.LaunchTemplates {
				templates = append(templates, LaunchTemplate{
					ID:        aws.StringValue(lt.LaunchTemplateId),
					Name:      aws.StringValue(lt.LaunchTemplateName),
					CreatedBy: aws.StringValue(lt.CreatedBy),
				})
			}
			more := pages.next()
			pages.warnIfCapped(e.region, "DescribeLaunchTemplates", lastPage)
			return more
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe launch templates: %w", err)
	}
	return templates, nil
}

// ListTemplateVersions returns every version of a launch template
func (e *EC2Inventory) ListTemplateVersions(ctx context.Context, templateID string) ([]TemplateVersion, error) {
	input := &ec2.DescribeLaunchTemplateVersionsInput{
		LaunchTemplateId: aws.String(templateID),
		MaxResults:       aws.Int64(int64(e.pages.TemplatePageSize)),
	}

	var versions []TemplateVersion
	err := e.limiter.Execute(ctx, "DescribeLaunchTemplateVersions", func() error {
		versions = nil
		var marshalErr error
		pages := &pageCounter{max: e.pages.MaxPages}
		err := e.client.DescribeLaunchTemplateVersionsPagesWithContext(ctx, input, func(page *ec2.DescribeLaunchTemplateVersionsOutput, lastPage bool) bool {
			for _, v := range page.LaunchTemplateVersions {
				data, err := json.Marshal(v.LaunchTemplateData)
				if err != nil {
					marshalErr = fmt.Errorf("failed to encode version %d: %w", aws.Int64Value(v.VersionNumber), err)
					return false
				}
				versions = append(versions, TemplateVersion{
					Number:      aws.Int64Value(v.VersionNumber),
					Description: aws.StringValue(v.VersionDescription),
					Data:        data,
				})
			}
			more := pages.next()
			pages.warnIfCapped(e.region, "DescribeLaunchTemplateVersions", lastPage)
			return more
		})
		if err != nil {
			return err
		}
		return marshalErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe versions of launch template %s: %w", templateID, err)
	}
	return versions, nil
}
