package harvest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/fetch"
	"github.com/ppiankov/fairmeter/internal/identifier"
	"github.com/ppiankov/fairmeter/internal/logging"
	"github.com/ppiankov/fairmeter/internal/model"
)

// max archive entries whose types are surfaced
const maxArchiveEntries = 50

// DataHarvester downloads a sample of the data files listed in the metadata
type DataHarvester struct {
	negotiator *fetch.Negotiator
	classifier *identifier.Classifier
	cfg        model.DataConfig
	logger     *zap.Logger
}

// NewDataHarvester creates a data harvester
func NewDataHarvester(n *fetch.Negotiator, c *identifier.Classifier, cfg model.DataConfig, logger *zap.Logger) *DataHarvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &DataHarvester{negotiator: n, classifier: c, cfg: cfg, logger: logging.ForMetric(logger, MetricContent)}
}

// Sample returns items with the picked ones downloaded and inspected.
// One item per claimed type is picked, the smallest claimed size first.
// Items keep their input order.
func (d *DataHarvester) Sample(ctx context.Context, items []model.ContentItem) []model.ContentItem {
	out := make([]model.ContentItem, len(items))
	copy(out, items)

	for i := range out {
		if out[i].Scheme == "" && out[i].URL != "" {
			id := d.classifier.Classify(out[i].URL)
			out[i].Scheme = id.Scheme
			out[i].IsPersistent = id.IsPersistent
		}
	}

	for _, i := range d.pick(out) {
		if ctx.Err() != nil {
			break
		}
		d.inspect(ctx, &out[i])
	}
	return out
}

// pick chooses the indexes to download
func (d *DataHarvester) pick(items []model.ContentItem) []int {
	best := make(map[string]int)
	var types []string
	for i, it := range items {
		if it.URL == "" {
			continue
		}
		key := strings.ToLower(fetch.MediaType(it.ClaimedType))
		cur, ok := best[key]
		if !ok {
			types = append(types, key)
			best[key] = i
			continue
		}
		if claimedSize(it) < claimedSize(items[cur]) {
			best[key] = i
		}
	}

	picks := make([]int, 0, len(types))
	for _, t := range types {
		picks = append(picks, best[t])
	}
	sort.Ints(picks)
	if len(picks) > d.cfg.MaxFiles {
		d.logger.Info("data files sampled", zap.Int("found", len(items)), zap.Int("max", d.cfg.MaxFiles))
		picks = picks[:d.cfg.MaxFiles]
	}
	return picks
}

// claimedSize parses a claimed size such as "1024", "2 MB" or "1.5 GiB";
// unknown sizes sort last
func claimedSize(it model.ContentItem) uint64 {
	s := strings.TrimSpace(it.ClaimedSize)
	if s == "" {
		return math.MaxUint64
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return math.MaxUint64
	}
	return n
}

func (d *DataHarvester) inspect(ctx context.Context, it *model.ContentItem) {
	it.Sampled = true
	resp, err := d.negotiator.Do(ctx, fetch.Request{
		Method:   http.MethodGet,
		URL:      it.URL,
		Classes:  []fetch.MimeClass{fetch.ClassAny},
		MaxBytes: d.cfg.MaxBytes,
		Timeout:  d.cfg.Timeout,
		NoCache:  true,
	})
	if resp == nil {
		it.Error = errString(err)
		d.logger.Warn("data file not accessible", zap.String("url", it.URL), zap.Error(err))
		return
	}

	it.HeaderContentType = fetch.MediaType(resp.ContentType)
	it.HeaderContentSize = resp.ContentLength
	it.DownloadedSize = int64(len(resp.Body))
	it.Truncated = resp.Truncated
	if !resp.OK() {
		it.Error = errString(err)
		d.logger.Warn("data file not accessible", zap.String("url", it.URL), zap.Int("status", resp.StatusCode))
		return
	}
	it.Verified = true

	if len(resp.Body) > 0 {
		it.SniffedTypes = sniff(resp.Body, resp.Truncated)
	}
	d.logger.Info("data file sampled",
		zap.String("url", it.URL),
		zap.String("content_type", it.HeaderContentType),
		zap.Strings("sniffed", it.SniffedTypes),
		zap.String("downloaded", humanize.Bytes(uint64(it.DownloadedSize))),
		zap.Bool("truncated", it.Truncated))

	if it.ClaimedSize != "" && it.HeaderContentSize > 0 {
		if n := claimedSize(*it); n != math.MaxUint64 && n != uint64(it.HeaderContentSize) {
			d.logger.Info("claimed size differs from header size",
				zap.String("claimed", it.ClaimedSize),
				zap.String("header", humanize.Bytes(uint64(it.HeaderContentSize))))
		}
	}
}

// sniff detects the type of a buffer and of the entries of archives it holds
func sniff(body []byte, truncated bool) []string {
	mt := mimetype.Detect(body)
	types := []string{fetch.MediaType(mt.String())}

	switch {
	case mt.Is("application/gzip"):
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return types
		}
		inner, _ := io.ReadAll(io.LimitReader(zr, int64(len(body))*8))
		if len(inner) == 0 {
			return types
		}
		innerType := mimetype.Detect(inner)
		types = appendType(types, fetch.MediaType(innerType.String()))
		if innerType.Is("application/x-tar") {
			types = appendType(types, tarTypes(inner)...)
		}
	case mt.Is("application/x-tar"):
		types = appendType(types, tarTypes(body)...)
	case mt.Is("application/zip") && !truncated:
		types = appendType(types, zipTypes(body)...)
	}
	return types
}

// tarTypes reads as many entry headers as the buffer holds
func tarTypes(body []byte) []string {
	var out []string
	tr := tar.NewReader(bytes.NewReader(body))
	for n := 0; n < maxArchiveEntries; n++ {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		head := make([]byte, 3072)
		k, _ := io.ReadFull(tr, head)
		if k == 0 {
			continue
		}
		out = appendType(out, fetch.MediaType(mimetype.Detect(head[:k]).String()))
	}
	return out
}

// zipTypes needs the central directory, so only complete archives are listed
func zipTypes(body []byte) []string {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil
	}
	var out []string
	for i, f := range zr.File {
		if i >= maxArchiveEntries {
			break
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		mt, err := mimetype.DetectReader(rc)
		rc.Close()
		if err != nil {
			continue
		}
		out = appendType(out, fetch.MediaType(mt.String()))
	}
	return out
}

func appendType(list []string, types ...string) []string {
	for _, t := range types {
		if t == "" {
			continue
		}
		dup := false
		for _, have := range list {
			if have == t {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, t)
		}
	}
	return list
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
