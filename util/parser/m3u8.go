package parser

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"hlsgrab/models"
	"hlsgrab/util"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"
)

const (
	keyMethodNone   = "NONE"
	keyMethodAES128 = "AES-128"
)

// MasterPlaylistError is returned when the content is a master playlist.
// VariantURL names the variant the caller should fetch instead.
type MasterPlaylistError struct {
	VariantURL string
	Bandwidth  uint32
}

func (e *MasterPlaylistError) Error() string {
	return fmt.Sprintf("master playlist, highest variant is %s (%d bps)", e.VariantURL, e.Bandwidth)
}

// ParseM3U8Content turns playlist text into a StreamManifest with absolute
// segment URIs, resolved against baseURL.
func ParseM3U8Content(
	content []byte,
	baseURL string,
) (*models.StreamManifest, error) {
	baseURLObj, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", util.ErrParse, err)
	}

	buf := bytes.NewBuffer(content)
	playlist, listType, err := m3u8.DecodeFrom(buf, true)
	if err != nil {
		return nil, fmt.Errorf("%w: failed parsing m3u8: %v", util.ErrParse, err)
	}

	switch listType {
	case m3u8.MASTER:
		return nil, selectVariant(
			playlist.(*m3u8.MasterPlaylist),
			baseURLObj,
		)
	case m3u8.MEDIA:
		return parseMediaPlaylist(
			playlist.(*m3u8.MediaPlaylist),
			baseURLObj,
			initSectionKeyed(content),
		)
	}

	return nil, fmt.Errorf("%w: unsupported m3u8 playlist type", util.ErrParse)
}

func selectVariant(
	playlist *m3u8.MasterPlaylist,
	baseURL *url.URL,
) error {
	var best *m3u8.Variant
	for _, variant := range playlist.Variants {
		if variant == nil || variant.URI == "" || variant.Iframe {
			continue
		}
		if best == nil || variant.Bandwidth > best.Bandwidth {
			best = variant
		}
	}
	if best == nil {
		return fmt.Errorf("%w: master playlist has no usable variant", util.ErrParse)
	}
	return &MasterPlaylistError{
		VariantURL: resolveURL(baseURL, best.URI),
		Bandwidth:  best.Bandwidth,
	}
}

func parseMediaPlaylist(
	playlist *m3u8.MediaPlaylist,
	baseURL *url.URL,
	initKeyed bool,
) (*models.StreamManifest, error) {
	manifest := &models.StreamManifest{
		URI:            baseURL.String(),
		MediaSequence:  playlist.SeqNo,
		TargetDuration: playlist.TargetDuration,
		Closed:         playlist.Closed,
	}

	key := playlist.Key
	initSection := playlist.Map

	initialCapacity := len(playlist.Segments)
	if initSection != nil && initSection.URI != "" {
		initialCapacity++
	}
	segments := make([]models.SegmentRef, 0, initialCapacity)

	sequence := playlist.SeqNo
	for position, segment := range playlist.Segments {
		if segment == nil {
			continue
		}
		if segment.URI == "" {
			return nil, fmt.Errorf("%w: segment %d has no URI", util.ErrParse, position)
		}
		if segment.Limit > 0 {
			return nil, fmt.Errorf("%w: byte-range segments are not supported", util.ErrParse)
		}
		if segment.Key != nil {
			if key == nil {
				key = segment.Key
			} else if !sameKey(key, segment.Key) {
				zap.S().Warnf(
					"playlist declares more than one key, keeping the first (%s) and ignoring %s",
					key.URI, segment.Key.URI,
				)
			}
		}
		if initSection == nil && segment.Map != nil && segment.Map.URI != "" {
			initSection = segment.Map
		}
		segments = append(segments, models.SegmentRef{
			Sequence: sequence,
			URI:      resolveURL(baseURL, segment.URI),
			Duration: segment.Duration,
		})
		manifest.Duration += segment.Duration
		sequence++
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: playlist has no segments", util.ErrParse)
	}
	if initSection != nil && initSection.URI != "" {
		if initSection.Limit > 0 {
			return nil, fmt.Errorf("%w: byte-range initialization sections are not supported", util.ErrParse)
		}
		segments = append([]models.SegmentRef{{
			Sequence: playlist.SeqNo,
			URI:      resolveURL(baseURL, initSection.URI),
			Init:     true,
			Clear:    !initKeyed,
		}}, segments...)
	}
	for i := range segments {
		segments[i].Index = uint64(i)
	}
	manifest.Segments = segments

	keyRef, err := parseKey(key, baseURL)
	if err != nil {
		return nil, err
	}
	manifest.Key = keyRef
	if keyRef != nil && initKeyed && keyRef.IV == nil {
		zap.S().Warnf("encrypted initialization section without an IV, deriving it from the media sequence")
	}

	if !manifest.Closed {
		zap.S().Warnf("playlist %s has no end tag, downloading the current snapshot", manifest.URI)
	}
	return manifest, nil
}

// initSectionKeyed reports whether an AES-128 key is in effect at the first
// EXT-X-MAP tag. The decoder attaches both tags to the next segment and
// loses their order, so the raw lines are scanned instead.
func initSectionKeyed(content []byte) bool {
	keyed := false
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			method := ""
			for _, attr := range strings.Split(strings.TrimPrefix(line, "#EXT-X-KEY:"), ",") {
				name, value, _ := strings.Cut(attr, "=")
				if strings.EqualFold(strings.TrimSpace(name), "METHOD") {
					method = strings.ToUpper(strings.Trim(strings.TrimSpace(value), `"`))
				}
			}
			keyed = method != "" && method != keyMethodNone
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			return keyed
		}
	}
	return keyed
}

func parseKey(key *m3u8.Key, baseURL *url.URL) (*models.KeyRef, error) {
	if key == nil {
		return nil, nil
	}
	method := strings.ToUpper(strings.TrimSpace(key.Method))
	switch method {
	case "", keyMethodNone:
		return nil, nil
	case keyMethodAES128:
	default:
		return nil, fmt.Errorf("%w: unsupported encryption method %q", util.ErrParse, key.Method)
	}
	if key.URI == "" {
		return nil, fmt.Errorf("%w: key tag has no URI", util.ErrParse)
	}
	iv, err := parseIV(key.IV)
	if err != nil {
		return nil, err
	}
	return &models.KeyRef{
		Method: keyMethodAES128,
		URI:    resolveURL(baseURL, key.URI),
		IV:     iv,
	}, nil
}

// parses the hexadecimal IV attribute, e.g. 0x00000000000000000000000000000001
func parseIV(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if len(value) > 32 {
		return nil, fmt.Errorf("%w: IV %q is longer than 128 bits", util.ErrParse, value)
	}
	// some servers drop leading zeros
	value = strings.Repeat("0", 32-len(value)) + value
	iv, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid IV: %v", util.ErrParse, err)
	}
	return iv, nil
}

func sameKey(a, b *m3u8.Key) bool {
	return a.Method == b.Method && a.URI == b.URI && a.IV == b.IV
}
