// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy access to a JSON REST api

The client either talks to a remote server by URL, optionally signing every request with AWS
SigV4, or directly to a mux router without marshalling HTTP. The router mode is the tool of
choice for unit tests: a fake server is just a router with a few handlers.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// ErrConnection is returned when the server could not be reached at all
var ErrConnection = errors.New("connection failed")

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	signer     *Signer
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests through the mux router
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the server at url
//
// WithSigner makes the client sign every request with AWS SigV4.
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithSigner returns a new client which signs every request
func (c Client) WithSigner(signer *Signer) Client {
	c.signer = signer
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// URL returns the base url of the client, empty in router mode
func (c Client) URL() string {
	return c.url
}

func (c Client) do(method, path string, headers map[string]string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return http.StatusBadRequest, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, rec.Body.Bytes(), nil
	}

	if c.signer != nil {
		if err := c.signer.Sign(c.Context(), r, body); err != nil {
			return http.StatusInternalServerError, nil, fmt.Errorf("%s %s: cannot sign request: %w", method, path, err)
		}
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, fmt.Errorf("%w: %s %s: %v", ErrConnection, method, c.url+path, err)
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, resBody, nil
}

func decode(resBody []byte, result interface{}) error {
	if len(resBody) == 0 || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

func statusError(status int, want []int, resBody []byte) error {
	for _, w := range want {
		if status == w {
			return nil
		}
	}
	return fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
		status, want[0], strings.TrimSpace(string(resBody)))
}

// RawGet gets a resource from path. Expects http.StatusOK or http.StatusNoContent as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extended with query strings. result can also be raw *[]byte or nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, resBody, err := c.do(http.MethodGet, path, nil, nil)
	if err != nil {
		return status, err
	}
	if status == http.StatusNoContent {
		return status, nil
	}
	if err := statusError(status, []int{http.StatusOK}, resBody); err != nil {
		return status, err
	}
	return status, decode(resBody, result)
}

// RawPostWithHeader posts a resource to path with extra headers. Expects http.StatusCreated
// or http.StatusOK as response, otherwise it will flag an error.
//
// body can also be a []byte, result can also be raw *[]byte or nil.
func (c Client) RawPostWithHeader(path string, headers map[string]string, body interface{}, result interface{}) (int, error) {
	j, ok := body.([]byte)
	if !ok {
		var err error
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}
	status, resBody, err := c.do(http.MethodPost, path, headers, j)
	if err != nil {
		return status, err
	}
	if err := statusError(status, []int{http.StatusCreated, http.StatusOK}, resBody); err != nil {
		return status, err
	}
	return status, decode(resBody, result)
}

// RawPost posts a resource to path. See RawPostWithHeader.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.RawPostWithHeader(path, nil, body, result)
}

// RawDeleteWithHeader deletes a resource. Expects http.StatusNoContent or http.StatusOK as response.
func (c Client) RawDeleteWithHeader(path string, headers map[string]string) (int, error) {
	status, resBody, err := c.do(http.MethodDelete, path, headers, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	return status, nil
}

// RawDelete deletes a resource. See RawDeleteWithHeader.
func (c Client) RawDelete(path string) (int, error) {
	return c.RawDeleteWithHeader(path, nil)
}
