package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tubelens/tubelens/pkg/logger"
)

// ErrChannelNotFound is returned when none of the resolution strategies
// produce a matching channel for the caller's input.
var ErrChannelNotFound = errors.New("no channel could be resolved for input")

// channelURLPattern matches the canonical channel URL forms. Capture groups:
// 1 = @handle, 2 = opaque channel ID, 3 = legacy /c/ name, 4 = legacy /user/ name.
// The legacy forms carry no opaque ID and no handle, so they fall through to
// the free-text search strategy.
var channelURLPattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/(?:@([A-Za-z0-9_.-]+)|channel/([A-Za-z0-9_-]+)|c/([A-Za-z0-9_-]+)|user/([A-Za-z0-9_-]+))`)

// Resolve maps free-form input (URL, handle, or channel name) to a canonical
// channel. Three strategies are attempted, in strictly decreasing confidence:
//  1. an explicit opaque channel ID embedded in a canonical URL is looked up
//     directly and returned verbatim;
//  2. a handle ("@name", bare or embedded in a URL) is used as a
//     channel-restricted keyword search, taking the top result;
//  3. the whole input is used as a channel-restricted free-text search,
//     taking the top result.
//
// Each strategy runs at most once; the first to yield a match wins. Ambiguous
// free-text matches are accepted as-is.
func (client *Client) Resolve(ctx context.Context, input string) (*ResolvedChannel, error) {
	trimmed := strings.TrimSpace(input)
	urlMatch := channelURLPattern.FindStringSubmatch(trimmed)

	if urlMatch != nil && urlMatch[2] != "" {
		if resolved, err := client.lookupChannelByID(ctx, urlMatch[2]); err == nil {
			return resolved, nil
		} else {
			log.Emit(logger.WARNING, "direct channel ID lookup for %s failed (%v), falling back to search\n", urlMatch[2], err)
		}
	}

	handle := ""
	if urlMatch != nil && urlMatch[1] != "" {
		handle = urlMatch[1]
	} else if strings.HasPrefix(trimmed, "@") {
		handle = strings.TrimPrefix(trimmed, "@")
	}

	if handle != "" {
		if resolved, err := client.searchForChannel(ctx, "@"+handle); err == nil {
			return resolved, nil
		} else if !errors.Is(err, ErrChannelNotFound) {
			return nil, err
		}
	}

	return client.searchForChannel(ctx, trimmed)
}

// lookupChannelByID queries channels.list with the opaque ID and returns the
// channel verbatim if the API knows it.
func (client *Client) lookupChannelByID(ctx context.Context, channelID string) (*ResolvedChannel, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	response, err := client.service.Channels.List([]string{"snippet"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list for %s failed: %w", channelID, err)
	}

	if len(response.Items) == 0 {
		return nil, ErrChannelNotFound
	}

	item := response.Items[0]
	title := ""
	if item.Snippet != nil {
		title = item.Snippet.Title
	}

	return &ResolvedChannel{ID: item.Id, Title: title}, nil
}

// searchForChannel performs a channel-restricted keyword search and takes
// the top-ranked result.
func (client *Client) searchForChannel(ctx context.Context, query string) (*ResolvedChannel, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	response, err := client.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("channel search for %q failed: %w", query, err)
	}

	for _, item := range response.Items {
		if item.Snippet == nil || item.Snippet.ChannelId == "" {
			continue
		}

		return &ResolvedChannel{ID: item.Snippet.ChannelId, Title: item.Snippet.ChannelTitle}, nil
	}

	return nil, ErrChannelNotFound
}
