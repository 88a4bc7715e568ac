package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/config"
	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// Layout of CRT_DT, expressed in the feed's local timezone.
const feedTimeLayout = "2006/01/02 15:04:05"

const resultCodeOK = "00"

type feedResponse struct {
	Header     feedHeader `json:"header"`
	NumOfRows  flexInt    `json:"numOfRows"`
	PageNo     flexInt    `json:"pageNo"`
	TotalCount flexInt    `json:"totalCount"`
	Body       []RawAlert `json:"body"`
}

type feedHeader struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
	ErrorMsg   string `json:"errorMsg"`
}

// RawAlert is one emergency text message as delivered by the feed.
type RawAlert struct {
	SN         flexString `json:"SN"`
	CreatedAt  string     `json:"CRT_DT"`
	Message    string     `json:"MSG_CN"`
	RegionText string     `json:"RCPTN_RGN_NM"`
	Level      string     `json:"EMRG_STEP_NM"`
	Type       string     `json:"DST_SE_NM"`
	RegYMD     string     `json:"REG_YMD"`
	ModYMD     string     `json:"MDFCN_YMD"`
}

// flexInt accepts both 12 and "12".
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*n = flexInt(i)
	return nil
}

// flexString accepts both "12" and 12.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedClient pages through the safety-data emergency message API.
type FeedClient struct {
	baseURL    string
	serviceKey string
	pageSize   int
	maxRecords int
	loc        *time.Location
	client     HTTPDoer
}

func NewFeedClient(cfg config.FeedConfig, loc *time.Location, client HTTPDoer) *FeedClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &FeedClient{
		baseURL:    cfg.URL,
		serviceKey: cfg.ServiceKey,
		pageSize:   cfg.PageSize,
		maxRecords: cfg.MaxRecords,
		loc:        loc,
		client:     client,
	}
}

// Fetch returns the alerts created on day (in the feed timezone), in feed
// order. It stops at MaxRecords, a short page or the reported total.
func (c *FeedClient) Fetch(ctx context.Context, day time.Time) ([]RawAlert, error) {
	crtDt := day.In(c.loc).Format("20060102")

	var alerts []RawAlert
	for page := 1; len(alerts) < c.maxRecords; page++ {
		resp, err := c.fetchPage(ctx, crtDt, page)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, resp.Body...)

		total := int(resp.TotalCount)
		if len(resp.Body) < c.pageSize || (total > 0 && page*c.pageSize >= total) {
			break
		}
	}
	if len(alerts) > c.maxRecords {
		alerts = alerts[:c.maxRecords]
	}
	return alerts, nil
}

func (c *FeedClient) fetchPage(ctx context.Context, crtDt string, page int) (*feedResponse, error) {
	params := url.Values{}
	params.Set("serviceKey", c.serviceKey)
	params.Set("returnType", "json")
	params.Set("crtDt", crtDt)
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("numOfRows", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if data.Header.ResultCode != resultCodeOK {
		msg := data.Header.ErrorMsg
		if msg == "" {
			msg = data.Header.ResultMsg
		}
		return nil, fmt.Errorf("feed error %s: %s", data.Header.ResultCode, msg)
	}
	return &data, nil
}

// ParseAlert maps a raw record onto a candidate disaster. Missing type and
// level fall back to the defaults; a missing or malformed CRT_DT is an error.
func ParseAlert(raw RawAlert, loc *time.Location, now time.Time) (*models.Disaster, error) {
	if strings.TrimSpace(raw.CreatedAt) == "" {
		return nil, fmt.Errorf("alert %s: missing CRT_DT", raw.SN)
	}
	start, err := time.ParseInLocation(feedTimeLayout, strings.TrimSpace(raw.CreatedAt), loc)
	if err != nil {
		return nil, fmt.Errorf("alert %s: parse CRT_DT: %w", raw.SN, err)
	}

	d := &models.Disaster{
		Type:          strings.TrimSpace(raw.Type),
		SeverityLevel: strings.TrimSpace(raw.Level),
		Message:       raw.Message,
		Active:        true,
		StartTime:     start.UTC(),
		UpdatedAt:     now.UTC().Truncate(time.Second),
		RawRegionText: strings.TrimSpace(raw.RegionText),
	}
	if d.Type == "" {
		d.Type = models.DefaultDisasterType
	}
	if d.SeverityLevel == "" {
		d.SeverityLevel = models.DefaultSeverityLevel
	}
	return d, nil
}
