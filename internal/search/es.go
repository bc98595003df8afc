package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/example/blog-cms/internal/config"
	"github.com/example/blog-cms/internal/models"
)

type Elastic struct {
	Client *elasticsearch.Client
	Index  string
}

// Document is the indexed form of a post.
type Document struct {
	ID                uint      `json:"id"`
	Title             string    `json:"title"`
	ThumbnailImageKey string    `json:"thumbnailImageKey"`
	CategoryIDs       []uint    `json:"categoryIds"`
	CreatedAt         time.Time `json:"createdAt"`
}

func DocumentFor(p *models.Post) Document {
	return Document{
		ID:                p.ID,
		Title:             p.Title,
		ThumbnailImageKey: p.ThumbnailImageKey,
		CategoryIDs:       p.CategoryIDs(),
		CreatedAt:         p.CreatedAt,
	}
}

func NewElastic(cfg *config.Config) (*Elastic, error) {
	cfgES := elasticsearch.Config{
		Addresses: []string{cfg.ElasticAddr},
	}
	if cfg.ElasticUsername != "" {
		cfgES.Username = cfg.ElasticUsername
		cfgES.Password = cfg.ElasticPassword
	}
	client, err := elasticsearch.NewClient(cfgES)
	if err != nil {
		return nil, err
	}
	index := cfg.ElasticIndex
	if index == "" {
		index = "posts"
	}
	return &Elastic{Client: client, Index: index}, nil
}

func (e *Elastic) EnsurePostsIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Exists([]string{e.Index}, e.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":                map[string]string{"type": "long"},
				"title":             map[string]string{"type": "keyword"},
				"thumbnailImageKey": map[string]string{"type": "keyword"},
				"categoryIds":       map[string]string{"type": "long"},
				"createdAt":         map[string]string{"type": "date"},
			},
		},
	}
	b, _ := json.Marshal(mapping)
	createRes, err := e.Client.Indices.Create(e.Index,
		e.Client.Indices.Create.WithContext(ctx),
		e.Client.Indices.Create.WithBody(bytes.NewReader(b)))
	if err != nil {
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}
	return nil
}

func (e *Elastic) IndexPost(ctx context.Context, doc Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: e.Index, DocumentID: strconv.FormatUint(uint64(doc.ID), 10), Body: bytes.NewReader(b), Refresh: "true"}
	res, err := req.Do(ctx, e.Client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index error: %s", res.String())
	}
	return nil
}

func (e *Elastic) DeletePost(ctx context.Context, id uint) error {
	req := esapi.DeleteRequest{Index: e.Index, DocumentID: strconv.FormatUint(uint64(id), 10), Refresh: "true"}
	res, err := req.Do(ctx, e.Client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete error: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FindRelatedPosts returns up to limit posts sharing at least one category
// with postID, newest first.
func (e *Elastic) FindRelatedPosts(ctx context.Context, postID uint, categoryIDs []uint, limit int) ([]Document, error) {
	if len(categoryIDs) == 0 {
		return []Document{}, nil
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": map[string]interface{}{
					"terms": map[string]interface{}{
						"categoryIds": categoryIDs,
					},
				},
				"must_not": map[string]interface{}{
					"term": map[string]interface{}{
						"id": postID,
					},
				},
			},
		},
		"sort": []map[string]string{{"createdAt": "desc"}},
		"size": limit,
	}

	b, _ := json.Marshal(body)
	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.Index),
		e.Client.Search.WithBody(bytes.NewReader(b)),
		e.Client.Search.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("related posts search error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	results := make([]Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		results = append(results, h.Source)
	}
	return results, nil
}
