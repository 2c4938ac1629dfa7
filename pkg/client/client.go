package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a remote wheelhouse server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Option func(*Client)

// WithAuthToken sets the admin key sent as a bearer token.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type urlBuilder struct {
	base   string
	path   string
	params url.Values
}

func (c *Client) url() urlBuilder {
	return urlBuilder{
		base:   c.baseURL,
		params: url.Values{},
	}
}

func (b urlBuilder) setPath(path string) urlBuilder {
	b.path = path
	return b
}

// setPathParam substitutes a {name} segment in the route pattern.
func (b urlBuilder) setPathParam(name, value string) urlBuilder {
	b.path = strings.ReplaceAll(b.path, "{"+name+"}", url.PathEscape(value))
	return b
}

func (b urlBuilder) addQueryParam(key string, value any) urlBuilder {
	switch v := value.(type) {
	case string:
		b.params.Add(key, v)
	default:
		b.params.Add(key, fmt.Sprint(v))
	}
	return b
}

func (b urlBuilder) build() string {
	u := b.base + b.path
	if len(b.params) > 0 {
		u += "?" + b.params.Encode()
	}
	return u
}
