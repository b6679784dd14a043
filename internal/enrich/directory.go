package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/directory"
	"github.com/sells-group/credleak/internal/model"
)

// UnknownGroup is the group recorded when the directory has no answer.
const UnknownGroup = "Unknown"

// Directory fills the organizational group, user id and account status
// from the directory.
type Directory struct {
	dir directory.Directory
}

// NewDirectory creates a directory enricher.
func NewDirectory(dir directory.Directory) *Directory {
	return &Directory{dir: dir}
}

// Name implements Enricher.
func (d *Directory) Name() string { return "directory" }

// Enrich implements Enricher. Lookup failures degrade to an unknown group
// and an inactive account; only an expired or cancelled context is
// returned as an error.
func (d *Directory) Enrich(ctx context.Context, rec *model.Record) error {
	if rec.DG != "" && rec.IsActiveAccount != nil {
		return nil
	}

	entry, err := d.dir.Lookup(ctx, rec.Email)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return eris.Wrap(ctxErr, "directory lookup")
		}
		if !eris.Is(err, directory.ErrNotFound) {
			zap.L().Warn("enrich: directory lookup failed",
				zap.Int("row", rec.Row), zap.Error(err))
		}
		if rec.DG == "" {
			rec.DG = UnknownGroup
		}
		if rec.IsActiveAccount == nil {
			rec.IsActiveAccount = model.Flag(false)
		}
		return nil
	}

	if rec.DG == "" {
		rec.DG = entry.Group
		if rec.DG == "" {
			rec.DG = UnknownGroup
		}
	}
	if rec.UserID == "" {
		rec.UserID = entry.UserID
	}
	if rec.IsActiveAccount == nil {
		rec.IsActiveAccount = model.Flag(entry.Active())
	}
	return nil
}
