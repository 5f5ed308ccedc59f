package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"ladderwatch/internal/config"

	"github.com/valyala/fasthttp"
)

// LadderClient talks to the remote ladder-ranking service. It only knows
// how to fetch a bounded batch of raw matches per call; validation and
// scoring happen downstream.
type LadderClient struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
}

func NewLadderClient(cfg *config.Config) *LadderClient {
	return &LadderClient{
		baseURL: cfg.LadderAPIURL,
		apiKey:  cfg.LadderAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// SearchMatches returns one page of a player's recent ladder matches,
// newest first.
func (c *LadderClient) SearchMatches(ctx context.Context, battleTag string, offset, pageSize int) (*MatchSearchResponse, error) {
	return doRequest[MatchSearchResponse](ctx, c, searchURL(c.baseURL, battleTag, offset, pageSize))
}

func searchURL(baseURL, battleTag string, offset, pageSize int) string {
	return fmt.Sprintf("%s/api/matches/search?battleTag=%s&offset=%d&pageSize=%d",
		baseURL, url.QueryEscape(battleTag), offset, pageSize)
}

func doRequest[T any](ctx context.Context, client *LadderClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if client.apiKey != "" {
		req.Header.Set("Authorization", client.apiKey)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("ladder API error: %d", resp.StatusCode())
	}

	result, err := decode[T](resp.Body())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decode[T any](body []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode ladder API response: %w", err)
	}
	return &result, nil
}

// DecodeMatchSearch parses a match-search response body.
func DecodeMatchSearch(body []byte) (*MatchSearchResponse, error) {
	return decode[MatchSearchResponse](body)
}

type MatchSearchResponse struct {
	Count   int           `json:"count"`
	Matches []LadderMatch `json:"matches"`
}

// LadderMatch is the raw candidate shape returned by the ranking service.
type LadderMatch struct {
	ID                int64        `json:"id"`
	StartTime         time.Time    `json:"startTime"`
	EndTime           *time.Time   `json:"endTime,omitempty"`
	DurationInSeconds *int64       `json:"durationInSeconds,omitempty"`
	MapName           string       `json:"mapName"`
	GameMode          string       `json:"gameMode"`
	Teams             []LadderTeam `json:"teams"`
}

type LadderTeam struct {
	Won     bool           `json:"won"`
	Players []LadderPlayer `json:"players"`
}

type LadderPlayer struct {
	CharacterID int64    `json:"characterId"`
	BattleTag   string   `json:"battleTag"`
	Name        string   `json:"name"`
	Race        string   `json:"race"`
	OldMMR      *float64 `json:"oldMmr,omitempty"`
	CurrentMMR  *float64 `json:"currentMmr,omitempty"`
}
