// Package parser reads HLS playlists to discover how many segments a series has.
package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"
)

// PlaylistInfo describes the media playlist a series length was read from.
type PlaylistInfo struct {
	// URL is the media playlist URL (the chosen variant for master playlists)
	URL string

	// Segments is the number of media segments listed
	Segments int

	// Bandwidth of the chosen variant, 0 for a plain media playlist
	Bandwidth uint32

	// MediaSequence is the sequence number of the first listed segment
	MediaSequence uint64
}

// SegmentCount fetches the playlist at playlistURL and returns the number of
// segments it lists. For a master playlist the variant with the highest
// bandwidth is followed.
func SegmentCount(ctx context.Context, client *http.Client, playlistURL string) (int, error) {
	info, err := ParsePlaylist(ctx, client, playlistURL)
	if err != nil {
		return 0, err
	}
	return info.Segments, nil
}

// ParsePlaylist fetches and parses an HLS playlist from a URL.
func ParsePlaylist(ctx context.Context, client *http.Client, playlistURL string) (*PlaylistInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}

	playlist, listType, err := fetch(ctx, client, playlistURL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MASTER {
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type")
		}
		return parseMasterPlaylist(ctx, client, master, playlistURL)
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	return mediaInfo(media, playlistURL, 0)
}

// parseMasterPlaylist follows the highest bandwidth variant of a master playlist.
func parseMasterPlaylist(ctx context.Context, client *http.Client, master *m3u8.MasterPlaylist, masterURL string) (*PlaylistInfo, error) {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}

	if best == nil {
		return nil, fmt.Errorf("master playlist contains no variants")
	}

	variantURL, err := resolveURL(masterURL, best.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variant URL: %w", err)
	}

	playlist, listType, err := fetch(ctx, client, variantURL)
	if err != nil {
		return nil, err
	}

	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("expected media playlist, got master playlist")
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	return mediaInfo(media, variantURL, best.Bandwidth)
}

func mediaInfo(media *m3u8.MediaPlaylist, playlistURL string, bandwidth uint32) (*PlaylistInfo, error) {
	count := 0
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		count++
	}

	if count == 0 {
		return nil, fmt.Errorf("playlist contains no segments")
	}

	return &PlaylistInfo{
		URL:           playlistURL,
		Segments:      count,
		Bandwidth:     bandwidth,
		MediaSequence: media.SeqNo,
	}, nil
}

func fetch(ctx context.Context, client *http.Client, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create playlist request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("failed to fetch playlist: HTTP %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse playlist: %w", err)
	}

	return playlist, listType, nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}
