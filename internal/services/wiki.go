package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tibiamarket/tracker/internal/metrics"
)

const (
	// DefaultWikiBaseURL is the MediaWiki API of the community wiki
	DefaultWikiBaseURL = "https://tibia.fandom.com/api.php"
	// DefaultWikiCategory lists every item that can be traded on the market
	DefaultWikiCategory = "Category:Marketable Items"

	wikiPageSize = 500
)

// WikiItemFetcher builds the tracked item list from a wiki category
type WikiItemFetcher struct {
	http *resty.Client
}

type categoryMembersResponse struct {
	Continue *struct {
		CMContinue string `json:"cmcontinue"`
	} `json:"continue"`
	Query struct {
		CategoryMembers []struct {
			PageID int    `json:"pageid"`
			NS     int    `json:"ns"`
			Title  string `json:"title"`
		} `json:"categorymembers"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// NewWikiItemFetcher creates a fetcher for the MediaWiki API at baseURL
func NewWikiItemFetcher(baseURL string) *WikiItemFetcher {
	if baseURL == "" {
		baseURL = DefaultWikiBaseURL
	}

	httpClient := resty.New()
	httpClient.SetTimeout(30 * time.Second)
	httpClient.SetBaseURL(baseURL)
	httpClient.SetHeader("user-agent", "tibia-market-tracker/1.0")
	httpClient.SetRetryCount(2)
	httpClient.SetRetryWaitTime(2 * time.Second)

	// be polite: 2 requests per second
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	return &WikiItemFetcher{http: httpClient}
}

// FetchCategory returns the article titles in category, in listing order,
// following continuation until the listing is exhausted
func (f *WikiItemFetcher) FetchCategory(ctx context.Context, category string) ([]string, error) {
	if category == "" {
		category = DefaultWikiCategory
	}

	var names []string
	seen := make(map[string]bool)
	cont := ""

	for page := 1; ; page++ {
		params := map[string]string{
			"action":  "query",
			"list":    "categorymembers",
			"cmtitle": category,
			"cmlimit": fmt.Sprint(wikiPageSize),
			"cmtype":  "page",
			"format":  "json",
		}
		if cont != "" {
			params["cmcontinue"] = cont
		}

		var result categoryMembersResponse
		resp, err := f.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&result).
			Get("")
		if err != nil {
			metrics.WikiRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetch %s page %d: %w", category, page, err)
		}
		if resp.IsError() {
			metrics.WikiRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetch %s page %d: status %d", category, page, resp.StatusCode())
		}
		if result.Error != nil {
			metrics.WikiRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("wiki error %s: %s", result.Error.Code, result.Error.Info)
		}
		metrics.WikiRequestsTotal.WithLabelValues("success").Inc()

		for _, member := range result.Query.CategoryMembers {
			if member.NS != 0 {
				continue
			}
			title := strings.TrimSpace(member.Title)
			key := strings.ToLower(title)
			if title == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, title)
		}

		log.Debug().Int("page", page).Int("items", len(names)).Msg("Wiki: category page fetched")

		if result.Continue == nil || result.Continue.CMContinue == "" {
			break
		}
		cont = result.Continue.CMContinue
	}

	log.Info().Str("category", category).Int("items", len(names)).Msg("Wiki: category fetched")
	return names, nil
}

// WriteTrackedItems writes names one per line, replacing path atomically
func WriteTrackedItems(path string, names []string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create item list directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	content := strings.Join(names, "\n")
	if len(names) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write item list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace item list: %w", err)
	}
	return nil
}
