package feed

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/store"
)

// Result reports the outcome of one supplier import.
type Result struct {
	SupplierID string `json:"supplier_id"`
	Total      int    `json:"total"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
}

// Importer loads supplier price lists into the raw offer table.
type Importer struct {
	store    store.Store
	source   *Source
	profiles map[string]Profile
}

// NewImporter creates an importer. Suppliers without a configured profile
// fall back to the default layout.
func NewImporter(st store.Store, source *Source, profiles map[string]Profile) *Importer {
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	return &Importer{store: st, source: source, profiles: profiles}
}

func (i *Importer) profileFor(supplierID string) Profile {
	if p, ok := i.profiles[supplierID]; ok {
		return p
	}
	return DefaultProfile()
}

// Import fetches and parses one supplier's price list and replaces that
// supplier's raw offers wholesale. Malformed rows are skipped and counted;
// only fetch, parse, or store failures abort the import.
func (i *Importer) Import(ctx context.Context, supplierID, ref string) (*Result, error) {
	if supplierID == "" {
		return nil, eris.New("feed: supplier id is required")
	}
	profile := i.profileFor(supplierID)
	log := zap.L().With(zap.String("supplier_id", supplierID), zap.String("ref", ref))

	rc, err := i.source.Open(ctx, supplierID, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	result := &Result{SupplierID: supplierID}
	var offers []model.RawOffer

	collect := func(row []string) {
		result.Total++
		offer, err := profile.offerFromRow(supplierID, row)
		if err != nil {
			log.Debug("feed: skipping row", zap.Int("row", result.Total), zap.Error(err))
			result.Skipped++
			return
		}
		offers = append(offers, offer)
	}

	switch formatFor(profile, ref) {
	case FormatXLSX:
		rows, err := i.spoolXLSX(rc, profile, ref)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			collect(row)
		}
	default:
		rowCh, errCh := streamCSV(ctx, rc, profile)
		for row := range rowCh {
			collect(row)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
	}

	n, err := i.store.ReplaceSupplierOffers(ctx, supplierID, offers)
	if err != nil {
		return nil, err
	}
	result.Imported = n

	log.Info("feed: import complete",
		zap.Int("total", result.Total),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// spoolXLSX copies the stream to a temp file so the XLSX reader can open it.
func (i *Importer) spoolXLSX(rc io.Reader, profile Profile, ref string) ([][]string, error) {
	tmp, err := os.CreateTemp("", "pricelist-*.xlsx")
	if err != nil {
		return nil, eris.Wrap(err, "feed: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return nil, eris.Wrapf(err, "feed: spool %s", ref)
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "feed: close temp file")
	}
	return readXLSX(tmp.Name(), profile)
}

// Job names one supplier price list to import.
type Job struct {
	SupplierID string
	Ref        string
}

// ImportAll runs multiple supplier imports concurrently. Each supplier's
// replacement is its own transaction, so one failed feed does not touch the
// others; the first error still cancels the remaining fetches.
func (i *Importer) ImportAll(ctx context.Context, jobs []Job, parallelism int) ([]*Result, error) {
	if parallelism <= 0 {
		parallelism = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	var results []*Result
	for _, job := range jobs {
		g.Go(func() error {
			res, err := i.Import(ctx, job.SupplierID, job.Ref)
			if err != nil {
				return eris.Wrapf(err, "feed: import %s", job.SupplierID)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
