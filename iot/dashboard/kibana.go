package dashboard

import (
	"context"
	"embed"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/relabs-tech/provisioning/core/client"
	"github.com/relabs-tech/provisioning/core/schema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const findResponseSchema = "https://provisioning.relabs.tech/dashboard/find_response.json"

var xsrf = map[string]string{"kbn-xsrf": "true"}

type queryBody struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

type queryAttributes struct {
	Title string    `json:"title"`
	Query queryBody `json:"query"`
}

type savedObject struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Attributes queryAttributes `json:"attributes"`
}

type findResponse struct {
	Total        int           `json:"total"`
	SavedObjects []savedObject `json:"saved_objects"`
}

// Kibana is the QueryRegistry of a Kibana dashboard, talking to its saved objects API
type Kibana struct {
	client    client.Client
	validator *schema.Validator
}

var _ QueryRegistry = (*Kibana)(nil)

// NewKibana creates a Kibana query registry using c. c is usually created with
// client.NewWithURL and a SigV4 signer for the es service.
func NewKibana(c client.Client) (*Kibana, error) {
	validator, err := schema.NewValidatorFromFS(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	return &Kibana{client: c, validator: validator}, nil
}

// FindQuery searches saved queries by title
func (k *Kibana) FindQuery(ctx context.Context, title string) ([]SavedQuery, error) {
	q := url.Values{}
	q.Set("type", "query")
	q.Set("search_fields", "title")
	q.Set("search", title)

	var raw []byte
	if _, err := k.client.WithContext(ctx).RawGet("/api/saved_objects/_find?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	if err := k.validator.ValidateBytes(raw, findResponseSchema); err != nil {
		return nil, fmt.Errorf("unexpected find response: %w", err)
	}
	var res findResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	queries := make([]SavedQuery, 0, len(res.SavedObjects))
	for _, o := range res.SavedObjects {
		queries = append(queries, SavedQuery{
			ID:       o.ID,
			Title:    o.Attributes.Title,
			Query:    o.Attributes.Query.Query,
			Language: o.Attributes.Query.Language,
		})
	}
	return queries, nil
}

// CreateQuery creates a saved query with title and a kuery filter
func (k *Kibana) CreateQuery(ctx context.Context, title, filter string) error {
	body := savedObject{
		Attributes: queryAttributes{
			Title: title,
			Query: queryBody{Query: filter, Language: Language},
		},
	}
	_, err := k.client.WithContext(ctx).RawPostWithHeader("/api/saved_objects/query/", xsrf, body, nil)
	return err
}

// DeleteQuery deletes the saved query with id
func (k *Kibana) DeleteQuery(ctx context.Context, id string) error {
	_, err := k.client.WithContext(ctx).RawDeleteWithHeader("/api/saved_objects/query/"+url.PathEscape(id), xsrf)
	return err
}
