package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	poolResponseLimit = 1 << 20
	poolAPIPath       = "burst"
)

var errSubmitRejected = errors.New("submission rejected")

// SubmitResult is the pool's answer to an accepted nonce.
type SubmitResult struct {
	ServerDeadline uint64
	Result         string
}

// flexUint64 accepts both JSON numbers and quoted decimal strings; pools and
// wallets disagree on which one to send for heights and targets.
type flexUint64 uint64

func (f *flexUint64) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %q as uint64: %w", s, err)
	}
	*f = flexUint64(v)
	return nil
}

type miningInfoResponse struct {
	GenerationSignature string      `json:"generationSignature"`
	BaseTarget          flexUint64  `json:"baseTarget"`
	Height              flexUint64  `json:"height"`
	TargetDeadline      flexUint64  `json:"targetDeadline"`
	ErrorCode           *flexUint64 `json:"errorCode,omitempty"`
	ErrorDescription    string      `json:"errorDescription,omitempty"`
}

type submitNonceResponse struct {
	Deadline         flexUint64  `json:"deadline"`
	Result           string      `json:"result"`
	ErrorCode        *flexUint64 `json:"errorCode,omitempty"`
	ErrorDescription string      `json:"errorDescription,omitempty"`
}

func (r submitNonceResponse) failed() bool {
	return r.ErrorCode != nil || r.ErrorDescription != ""
}

// PoolClient talks to a pool or a wallet node over the Burst HTTP API.
type PoolClient struct {
	base          *url.URL
	http          *http.Client
	pollTimeout   time.Duration
	submitTimeout time.Duration
	secretPhrase  string
	headers       http.Header
}

func NewPoolClient(cfg Config) (*PoolClient, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse pool url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("pool url %q: scheme must be http or https", cfg.URL)
	}
	headers := make(http.Header)
	headers.Set("User-Agent", softwareName+"/"+buildVersion)
	headers.Set("X-Miner", softwareName+"/"+buildVersion)
	minerName := cfg.MinerName
	if minerName == "" {
		minerName, _ = os.Hostname()
	}
	if minerName != "" {
		headers.Set("X-Minername", minerName)
	}
	for k, v := range cfg.AdditionalHeaders {
		headers.Set(k, v)
	}
	return &PoolClient{
		base: base,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pollTimeout:   cfg.fetchTimeout(),
		submitTimeout: cfg.Timeout,
		secretPhrase:  cfg.SecretPhrase,
		headers:       headers,
	}, nil
}

func (c *PoolClient) Endpoint() string {
	return c.base.Redacted()
}

func (c *PoolClient) requestURL(params url.Values) string {
	u := c.base.JoinPath(poolAPIPath)
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *PoolClient) do(ctx context.Context, method string, params url.Values, capacity uint64) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(params), nil)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if method == http.MethodPost {
		req.Header.Set("X-Capacity", strconv.FormatUint(capacity, 10))
	}
	logNetMessage("send", []byte(method+" "+req.URL.String()))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, poolResponseLimit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	logNetMessage("recv", body)
	return body, resp.StatusCode, nil
}

// FetchMiningInfo asks for the round the pool is mining on.
func (c *PoolClient) FetchMiningInfo(ctx context.Context) (MiningInfo, error) {
	if c.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.pollTimeout)
		defer cancel()
	}
	params := url.Values{"requestType": {"getMiningInfo"}}
	body, status, err := c.do(ctx, http.MethodGet, params, 0)
	if err != nil {
		return MiningInfo{}, fmt.Errorf("get mining info: %w", err)
	}
	if status != http.StatusOK {
		return MiningInfo{}, fmt.Errorf("get mining info: http status %d", status)
	}
	var resp miningInfoResponse
	if err := fastJSONUnmarshal(body, &resp); err != nil {
		return MiningInfo{}, fmt.Errorf("decode mining info: %w", err)
	}
	if resp.ErrorCode != nil || resp.ErrorDescription != "" {
		return MiningInfo{}, fmt.Errorf("get mining info: pool error: %s", resp.ErrorDescription)
	}
	if resp.GenerationSignature == "" {
		return MiningInfo{}, errors.New("get mining info: response has no generationSignature")
	}
	return MiningInfo{
		GenerationSignature: strings.ToLower(resp.GenerationSignature),
		Height:              uint64(resp.Height),
		BaseTarget:          uint64(resp.BaseTarget),
		TargetDeadline:      uint64(resp.TargetDeadline),
	}, nil
}

// SubmitNonce posts one nonce. Transport failures come back as plain
// errors; a pool that answers with an error body yields errSubmitRejected.
func (c *PoolClient) SubmitNonce(ctx context.Context, cand NonceCandidate) (SubmitResult, error) {
	if c.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}
	params := url.Values{
		"requestType": {"submitNonce"},
		"accountId":   {strconv.FormatUint(cand.AccountID, 10)},
		"nonce":       {strconv.FormatUint(cand.Nonce, 10)},
		"deadline":    {strconv.FormatUint(cand.RawDeadline, 10)},
		"blockheight": {strconv.FormatUint(cand.Height, 10)},
	}
	if c.secretPhrase != "" {
		params.Set("secretPhrase", c.secretPhrase)
	}
	body, status, err := c.do(ctx, http.MethodPost, params, cand.Capacity)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit nonce: %w", err)
	}
	var resp submitNonceResponse
	decodeErr := fastJSONUnmarshal(body, &resp)
	if decodeErr == nil && resp.failed() {
		code := uint64(0)
		if resp.ErrorCode != nil {
			code = uint64(*resp.ErrorCode)
		}
		return SubmitResult{}, fmt.Errorf("%w: code %d: %s", errSubmitRejected, code, resp.ErrorDescription)
	}
	if status < 200 || status > 299 {
		return SubmitResult{}, fmt.Errorf("submit nonce: http status %d", status)
	}
	if decodeErr != nil {
		return SubmitResult{}, fmt.Errorf("decode submit response: %w", decodeErr)
	}
	return SubmitResult{ServerDeadline: uint64(resp.Deadline), Result: resp.Result}, nil
}
