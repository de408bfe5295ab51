// Package fabmanager is a client for the FabManager Open API. It owns
// everything HTTP: token auth, pagination, retry-free bounded fetching. The
// cleaning pipeline downstream only ever sees the raw record batches this
// package returns.
package fabmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fablab-opendata/lib/restyutil"
	"fablab-opendata/pipeline/record"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fablab-opendata.lib.fabmanager")

const defaultPerPage = 100

type Config struct {
	// BaseURL of the FabManager instance, e.g. "https://fab.example.org".
	BaseURL string
	// Token is the Open API token. Sent on every request, logged never.
	Token string
	// CloudflareBypass wraps the transport for instances fronted by
	// cloudflare's browser checks.
	CloudflareBypass bool
}

type Client struct {
	client  *resty.Client
	baseURL string
}

func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}

	client := resty.New()
	client.SetHeader("Authorization", fmt.Sprintf("Token token=%s", config.Token))
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(time.Second * 30)
	if config.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	restyutil.InstrumentClient(client, tracer)

	return &Client{
		client:  client,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
	}, nil
}

// TestConnection checks reachability and authentication with a minimal
// request.
func (c *Client) TestConnection(ctx context.Context) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"page": "1", "per_page": "1"}).
		Get(c.baseURL + "/open_api/v1/users")
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	switch res.StatusCode() {
	case 200:
		return nil
	case 401:
		return fmt.Errorf("authentication failed: invalid api token")
	case 403:
		return fmt.Errorf("access forbidden: check api permissions")
	case 404:
		return fmt.Errorf("api endpoint not found: check base url")
	default:
		return fmt.Errorf("unexpected response: http %d", res.StatusCode())
	}
}

// Page is one page of an endpoint's records plus the pagination state the
// API reported for it.
type Page struct {
	Records []record.Record
	Total   int
	HasNext bool
}

// FetchPage fetches one page from an endpoint. dataKey names the wrapper
// field in the response body ("users", "machines", ...); a bare array
// response works too.
func (c *Client) FetchPage(ctx context.Context, endpoint, dataKey string, page, perPage int) (Page, error) {
	ctx, span := tracer.Start(ctx, "FetchPage")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("page", page),
	)

	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}).
		Get(c.baseURL + endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}
	if res.StatusCode() != 200 {
		err := fmt.Errorf("fetch %s page %d: http %d", endpoint, page, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}

	records, err := decodeRecords(res.Body(), dataKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, fmt.Errorf("decode %s page %d: %w", endpoint, page, err)
	}

	out := Page{Records: records}
	if total, err := strconv.Atoi(res.Header().Get("Total")); err == nil {
		out.Total = total
	}
	out.HasNext = linkRels(res.Header().Get("Link"))["next"] != ""
	return out, nil
}

// FetchAll walks every page of an endpoint and returns all records.
func (c *Client) FetchAll(ctx context.Context, endpoint, dataKey string) ([]record.Record, error) {
	ctx, span := tracer.Start(ctx, "FetchAll")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	var all []record.Record
	for page := 1; ; page++ {
		fetched, err := c.FetchPage(ctx, endpoint, dataKey, page, defaultPerPage)
		if err != nil {
			return nil, err
		}
		all = append(all, fetched.Records...)

		slog.Debug(
			"fetched page",
			"endpoint", endpoint,
			"page", page,
			"records", len(all),
			"total", fetched.Total,
		)
		if !fetched.HasNext || len(fetched.Records) == 0 {
			break
		}
	}

	slog.Info("fetch complete", "endpoint", endpoint, "records", len(all))
	span.SetAttributes(attribute.Int("records", len(all)))
	return all, nil
}

func (c *Client) Users(ctx context.Context) ([]record.Record, error) {
	return c.FetchAll(ctx, "/open_api/v1/users", "users")
}

func (c *Client) Machines(ctx context.Context) ([]record.Record, error) {
	return c.FetchAll(ctx, "/open_api/v1/machines", "machines")
}

func (c *Client) Trainings(ctx context.Context) ([]record.Record, error) {
	return c.FetchAll(ctx, "/open_api/v1/trainings", "trainings")
}

func (c *Client) Reservations(ctx context.Context) ([]record.Record, error) {
	return c.FetchAll(ctx, "/open_api/v1/reservations", "reservations")
}

func decodeRecords(body []byte, dataKey string) ([]record.Record, error) {
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if inner, ok := wrapped[dataKey]; ok {
			body = inner
		}
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	records := make([]record.Record, len(raw))
	for i, item := range raw {
		records[i] = record.Record(item)
	}
	return records, nil
}

// linkRels parses an RFC-5988 Link header into rel -> url.
func linkRels(header string) map[string]string {
	rels := map[string]string{}
	for _, link := range strings.Split(header, ",") {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}

		parts := strings.Split(link, ";")
		if len(parts) < 2 {
			continue
		}
		url := strings.Trim(strings.TrimSpace(parts[0]), "<>")

		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			if value, ok := strings.CutPrefix(param, "rel="); ok {
				rel := strings.Trim(value, `"'`)
				if rel != "" {
					rels[rel] = url
				}
			}
		}
	}
	return rels
}
