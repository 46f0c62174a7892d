package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/leadflow/pkg/catalog"
	"github.com/cenkalti/backoff/v5"
)

const activeCoursesQuery = "SELECT Id, Name, Course_Type__c, tipo_de_estudio1__c, tipo_de_estudio2__c " +
	"FROM hed__Course__c WHERE Activo__c = true"

type courseRecord struct {
	ID         string `json:"Id"`
	Name       string `json:"Name"`
	CourseType string `json:"Course_Type__c"`
	StudyType1 string `json:"tipo_de_estudio1__c"`
	StudyType2 string `json:"tipo_de_estudio2__c"`
}

type queryPage struct {
	Done           bool           `json:"done"`
	NextRecordsURL string         `json:"nextRecordsUrl"`
	Records        []courseRecord `json:"records"`
}

func (c *Client) queryURL(soql string) string {
	return fmt.Sprintf("%s/services/data/%s/query/?q=%s", c.cfg.InstanceURL, c.cfg.APIVersion, url.QueryEscape(soql))
}

// ActiveCourses reads every active course from the CRM, following result
// pages. Records without an id or a name are skipped. The CRM id is used as
// both the catalog id and its sf_id.
func (c *Client) ActiveCourses(ctx context.Context) ([]catalog.Course, error) {
	var courses []catalog.Course
	next := c.queryURL(activeCoursesQuery)
	for next != "" {
		page, err := c.queryPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Records {
			id, name := strings.TrimSpace(r.ID), strings.TrimSpace(r.Name)
			if id == "" || name == "" {
				c.logger.Warn("skipping crm course without id or name", "id", r.ID)
				continue
			}
			courses = append(courses, catalog.Course{
				ID:              id,
				SFID:            id,
				Name:            name,
				StudyType1:      r.StudyType1,
				StudyType2:      r.StudyType2,
				StudyOfInterest: r.CourseType,
			})
		}
		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			next = c.cfg.InstanceURL + page.NextRecordsURL
		}
	}
	c.logger.Debug("crm courses fetched", "count", len(courses))
	return courses, nil
}

func (c *Client) queryPage(ctx context.Context, pageURL string) (*queryPage, error) {
	op := func() (*queryPage, error) {
		data, err := c.send(ctx, http.MethodGet, pageURL, nil)
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.invalidate()
			data, err = c.send(ctx, http.MethodGet, pageURL, nil)
		}
		if err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		var page queryPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("crm: invalid query response: %w", err))
		}
		return &page, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newRetry()),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
	)
}
