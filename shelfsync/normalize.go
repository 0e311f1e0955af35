package shelfsync

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

// The normalizer converts untrusted wire payloads into fully-defaulted
// local records. Every field may be missing, wrong-typed, or out of
// range; the result is always a total record or a dropped change, never
// a partial structure downstream code has to null-check.

// Closed set of game statuses; anything else snaps to empty.
var gameStatuses = map[string]struct{}{
	"backlog":   {},
	"playing":   {},
	"completed": {},
	"abandoned": {},
	"wishlist":  {},
}

// Closed set of view sort keys.
var viewSortKeys = map[string]struct{}{
	"title":        {},
	"platformName": {},
	"status":       {},
	"rating":       {},
	"updatedAt":    {},
}

// Review-source hosts. Matching is exact-or-subdomain only; substring
// matches would let metacritic.com.evil.example spoof a source.
var reviewSourceHosts = map[string]string{
	"metacritic.com": "metacritic",
	"opencritic.com": "opencritic",
	"mobygames.com":  "mobygames",
}

func decodePayload(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// stringValue coerces a payload field to a trimmed string. Numbers are
// stringified (legacy clients sent numeric catalog ids).
func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// intValue parses an integral identifier, rejecting anything non-numeric
// or fractional.
func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// scoreValue range-checks a 0-10 score and rounds it to one decimal;
// anything else becomes 0.
func scoreValue(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		if s, sok := v.(string); sok {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return 0
			}
			f = parsed
		} else {
			return 0
		}
	}
	if math.IsNaN(f) || f < 0 || f > 10 {
		return 0
	}
	return math.Round(f*10) / 10
}

// normalizeURL accepts absolute http(s) URLs and protocol-relative URLs
// (upgraded to https); everything else is dropped.
func normalizeURL(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// stringList cleans a list-valued field: non-strings and blanks dropped,
// duplicates removed, original order kept.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func snapEnum(v any, allowed map[string]struct{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if _, ok := allowed[s]; !ok {
		return ""
	}
	return s
}

// DetectReviewSourceFromURL infers a review source from a URL's host
// using exact-or-subdomain matching against the allow-list. Returns ""
// when the host matches nothing.
func DetectReviewSourceFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	for domain, source := range reviewSourceHosts {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return source
		}
	}
	return ""
}

// GameKeyFromPayload extracts the composite game identity. A missing or
// non-numeric platform id that is present rejects the record; an absent
// platform id means unset (0).
func GameKeyFromPayload(payload json.RawMessage) (gameID string, platformID int64, ok bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return "", 0, false
	}
	return gameKey(m)
}

func gameKey(m map[string]any) (gameID string, platformID int64, ok bool) {
	gameID, ok = stringValue(m["gameId"])
	if !ok || gameID == "" {
		return "", 0, false
	}
	if raw, present := m["platformId"]; present && raw != nil {
		n, nok := intValue(raw)
		if !nok || n < 0 {
			return "", 0, false
		}
		platformID = n
	}
	return gameID, platformID, true
}

// NormalizeGame converts an untrusted game payload into a total Game
// record. ok is false when the identity fields are unusable.
func NormalizeGame(payload json.RawMessage) (*shelfstore.Game, bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return nil, false
	}
	gameID, platformID, ok := gameKey(m)
	if !ok {
		return nil, false
	}

	g := &shelfstore.Game{
		GameID:      gameID,
		PlatformID:  platformID,
		Status:      snapEnum(m["status"], gameStatuses),
		Rating:      scoreValue(m["rating"]),
		ReviewScore: scoreValue(m["reviewScore"]),
		ReviewURL:   normalizeURL(m["reviewUrl"]),
		CoverURL:    normalizeURL(m["coverUrl"]),
		Genres:      stringList(m["genres"]),
	}

	if title, ok := stringValue(m["title"]); ok && title != "" {
		g.Title = title
	} else {
		g.Title = shelfstore.UnknownTitle
	}
	if name, ok := stringValue(m["platformName"]); ok && name != "" {
		g.PlatformName = name
	} else {
		g.PlatformName = shelfstore.UnknownPlatform
	}

	if src, ok := m["reviewSource"].(string); ok {
		src = strings.TrimSpace(strings.ToLower(src))
		for _, known := range reviewSourceHosts {
			if src == known {
				g.ReviewSource = src
				break
			}
		}
	}
	if g.ReviewSource == "" && g.ReviewURL != "" {
		g.ReviewSource = DetectReviewSourceFromURL(g.ReviewURL)
	}

	if ts, ok := stringValue(m["updatedAt"]); ok {
		g.UpdatedAt = ts
	}

	return g, true
}

// TagIDFromPayload extracts a tag's surrogate id; non-positive or
// non-numeric ids reject the record.
func TagIDFromPayload(payload json.RawMessage) (int64, bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return 0, false
	}
	return surrogateID(m)
}

func surrogateID(m map[string]any) (int64, bool) {
	n, ok := intValue(m["id"])
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

// NormalizeTag converts an untrusted tag payload into a total Tag record.
func NormalizeTag(payload json.RawMessage) (*shelfstore.Tag, bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return nil, false
	}
	id, ok := surrogateID(m)
	if !ok {
		return nil, false
	}
	t := &shelfstore.Tag{ID: id}
	if name, ok := stringValue(m["name"]); ok && name != "" {
		t.Name = name
	} else {
		t.Name = "Untitled"
	}
	if color, ok := stringValue(m["color"]); ok {
		t.Color = color
	}
	return t, true
}

// ViewIDFromPayload extracts a view's surrogate id.
func ViewIDFromPayload(payload json.RawMessage) (int64, bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return 0, false
	}
	return surrogateID(m)
}

// NormalizeView converts an untrusted view payload into a total View
// record. Filters must be a JSON object; anything else becomes {}.
func NormalizeView(payload json.RawMessage) (*shelfstore.View, bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return nil, false
	}
	id, ok := surrogateID(m)
	if !ok {
		return nil, false
	}
	v := &shelfstore.View{ID: id, SortBy: snapEnum(m["sortBy"], viewSortKeys)}
	if name, ok := stringValue(m["name"]); ok && name != "" {
		v.Name = name
	} else {
		v.Name = "Untitled"
	}
	v.Filters = json.RawMessage(`{}`)
	if obj, ok := m["filters"].(map[string]any); ok {
		if b, err := json.Marshal(obj); err == nil {
			v.Filters = b
		}
	}
	return v, true
}

// NormalizeSetting extracts a key/value pair; a blank key rejects the
// record. Non-string values are stringified.
func NormalizeSetting(payload json.RawMessage) (key, value string, ok bool) {
	m, ok := decodePayload(payload)
	if !ok {
		return "", "", false
	}
	key, ok = stringValue(m["key"])
	if !ok || key == "" {
		return "", "", false
	}
	if v, vok := stringValue(m["value"]); vok {
		value = v
	}
	return key, value, true
}
