// Package salesforce pushes leads to Salesforce over the JWT-authenticated
// REST API.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Salesforce REST API the lead push needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error)
	UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error)
	DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error)
}

// CollectionRecord is one record of a collection update.
type CollectionRecord struct {
	ID     string         `json:"Id"`
	Fields map[string]any `json:"fields"`
}

// CollectionResult is the per-record outcome of a collection call.
type CollectionResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// SObjectField is one field of a described sObject.
type SObjectField struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Createable bool   `json:"createable"`
	Updateable bool   `json:"updateable"`
}

// SObjectDescription is the describe metadata of an sObject.
type SObjectDescription struct {
	Name   string         `json:"name"`
	Fields []SObjectField `json:"fields"`
}

// Missing returns the names in want that the sObject does not have or does
// not allow to be set on create.
func (d *SObjectDescription) Missing(want []string) []string {
	have := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		have[f.Name] = f.Createable
	}
	var missing []string
	for _, name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// ClientOption configures NewClient.
type ClientOption func(*sfClient)

// WithRateLimit caps API calls per second. Burst is the integer part of rps,
// at least 1.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient adapts go-salesforce to Client. The library takes no context, so
// ctx only bounds the rate limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialised go-salesforce session.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits for the limiter, runs fn and wraps its error with op.
func (c *sfClient) call(ctx context.Context, op string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "sf: %s: rate limit", op)
		}
	}
	if err := fn(); err != nil {
		return eris.Wrapf(err, "sf: %s", op)
	}
	return nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	return c.call(ctx, "query", func() error {
		return c.sf.Query(soql, out)
	})
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	var id string
	err := c.call(ctx, "insert "+sObjectName, func() error {
		res, err := c.sf.InsertOne(sObjectName, record)
		if err != nil {
			return err
		}
		if !res.Success {
			return eris.New(fmt.Sprintf("rejected: %v", res.Errors))
		}
		id = res.Id
		return nil
	})
	return id, err
}

func (c *sfClient) InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	var out []CollectionResult
	err := c.call(ctx, "insert collection "+sObjectName, func() error {
		res, err := c.sf.InsertCollection(sObjectName, records, maxBatchSize)
		if err != nil {
			return err
		}
		out = toResults(res)
		return nil
	})
	return out, err
}

func (c *sfClient) UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			row[k] = v
		}
		row["Id"] = rec.ID
		rows[i] = row
	}

	var out []CollectionResult
	err := c.call(ctx, "update collection "+sObjectName, func() error {
		res, err := c.sf.UpdateCollection(sObjectName, rows, maxBatchSize)
		if err != nil {
			return err
		}
		out = toResults(res)
		return nil
	})
	return out, err
}

func (c *sfClient) DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error) {
	var desc SObjectDescription
	err := c.call(ctx, "describe "+name, func() error {
		resp, err := c.sf.DoRequest("GET", "/sobjects/"+name+"/describe", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close() //nolint:errcheck
		return eris.Wrap(json.NewDecoder(resp.Body).Decode(&desc), "decode")
	})
	if err != nil {
		return nil, err
	}
	return &desc, nil
}

func toResults(res salesforce.SalesforceResults) []CollectionResult {
	out := make([]CollectionResult, len(res.Results))
	for i, r := range res.Results {
		var msgs []string
		for _, e := range r.Errors {
			msgs = append(msgs, e.Message)
		}
		out[i] = CollectionResult{ID: r.Id, Success: r.Success, Errors: msgs}
	}
	return out
}
