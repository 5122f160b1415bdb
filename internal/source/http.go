package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-assets/internal/asset"
)

// maxBody caps a single source response.
var maxBody int64 = 32 << 20

// query builds the request for a bbox query. GET layers carry the
// parameters in the URL; POST layers send them form-encoded.
func query(rt asset.Retrieval, b orb.Bound) (method, target, body string, err error) {
	u, err := url.Parse(rt.URL)
	if err != nil {
		return "", "", "", fmt.Errorf("retrieval url: %w", err)
	}
	v := u.Query()
	for k, p := range rt.Params {
		v.Set(k, p)
	}
	v.Set(rt.BBoxParam, bboxString(b))
	if len(rt.PropertyNames) > 0 {
		v.Set("propertyName", strings.Join(rt.PropertyNames, ","))
	}

	if strings.EqualFold(rt.Method, http.MethodPost) {
		u.RawQuery = ""
		return http.MethodPost, u.String(), v.Encode(), nil
	}
	u.RawQuery = v.Encode()
	return http.MethodGet, u.String(), "", nil
}

func bboxString(b orb.Bound) string {
	parts := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	return strings.Join(s, ",")
}

// get performs a rate-limited, cached request.
func (s *Source) get(ctx context.Context, layerID, method, target, body string) ([]byte, error) {
	key := method + " " + target
	if body != "" {
		key += "\n" + body
	}
	if b, ok := s.cache.Get(ctx, key); ok {
		return b, nil
	}
	if err := s.limiter(layerID).Wait(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, errNoData
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %s", method, target, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBody {
		return nil, fmt.Errorf("%s %s: response too large (over %d bytes)", method, target, maxBody)
	}
	s.cache.Set(ctx, key, b)
	return b, nil
}

// fetchDocument queries a geojson or pins endpoint.
func (s *Source) fetchDocument(ctx context.Context, l *asset.Layer, b orb.Bound) ([]*asset.Feature, error) {
	cfg := l.Config()
	method, target, body, err := query(cfg.Retrieval, b)
	if err != nil {
		return nil, err
	}
	data, err := s.get(ctx, l.ID(), method, target, body)
	if err == errNoData {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Retrieval.Format == Pins {
		return decodePins(data)
	}
	return decodeGeoJSON(data, cfg.AssetIDField)
}

// tileURL expands {z}, {x} and {y}.
func tileURL(tmpl string, z, x, y uint32) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(z), 10),
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
	)
	return r.Replace(tmpl)
}

func (s *Source) remoteTile(ctx context.Context, l *asset.Layer, z, x, y uint32) ([]byte, error) {
	rt := l.Config().Retrieval
	target := tileURL(rt.URL, z, x, y)
	if len(rt.Params) > 0 {
		keys := make([]string, 0, len(rt.Params))
		for k := range rt.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		v := url.Values{}
		for _, k := range keys {
			v.Set(k, rt.Params[k])
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + v.Encode()
	}
	return s.get(ctx, l.ID(), http.MethodGet, target, "")
}
