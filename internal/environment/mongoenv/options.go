package mongoenv

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/tag"

	"github.com/roach88/unifiedrunner/internal/connstr"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// ClientOptions builds driver options for a client entity. The entity's
// uriOptions are merged into base, its serverApi is applied, and when rec is
// non-nil the recorder is attached as command and pool monitor.
func ClientOptions(base string, c *testformat.Client, rec *Recorder) (*options.ClientOptions, error) {
	opts := options.Client().ApplyURI(connstr.MergeURIOptions(base, c.URIOptions))

	if c.ServerAPI != nil {
		api := options.ServerAPI(options.ServerAPIVersion(c.ServerAPI.Version))
		if c.ServerAPI.Strict != nil {
			api.SetStrict(*c.ServerAPI.Strict)
		}
		if c.ServerAPI.DeprecationErrors != nil {
			api.SetDeprecationErrors(*c.ServerAPI.DeprecationErrors)
		}
		opts.SetServerAPIOptions(api)
	}

	if rec != nil {
		opts.SetMonitor(rec.CommandMonitor())
		opts.SetPoolMonitor(rec.PoolMonitor())
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("client %s: %w", c.ID, err)
	}
	return opts, nil
}

// DatabaseOptions converts the options of a database entity.
func DatabaseOptions(o *testformat.CollectionOrDatabaseOptions) (*options.DatabaseOptions, error) {
	opts := options.Database()
	if o == nil {
		return opts, nil
	}
	rc, rp, wc, err := convertShared(o)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		opts.SetReadConcern(rc)
	}
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	if wc != nil {
		opts.SetWriteConcern(wc)
	}
	return opts, nil
}

// CollectionOptions converts the options of a collection entity.
func CollectionOptions(o *testformat.CollectionOrDatabaseOptions) (*options.CollectionOptions, error) {
	opts := options.Collection()
	if o == nil {
		return opts, nil
	}
	rc, rp, wc, err := convertShared(o)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		opts.SetReadConcern(rc)
	}
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	if wc != nil {
		opts.SetWriteConcern(wc)
	}
	return opts, nil
}

func convertShared(o *testformat.CollectionOrDatabaseOptions) (*readconcern.ReadConcern, *readpref.ReadPref, *writeconcern.WriteConcern, error) {
	var rc *readconcern.ReadConcern
	if o.ReadConcern != nil {
		rc = &readconcern.ReadConcern{Level: o.ReadConcern.Level}
	}

	var rp *readpref.ReadPref
	if o.ReadPreference != nil {
		var err error
		if rp, err = readPreference(o.ReadPreference); err != nil {
			return nil, nil, nil, err
		}
	}

	var wc *writeconcern.WriteConcern
	if o.WriteConcern != nil {
		var err error
		if wc, err = writeConcern(o.WriteConcern); err != nil {
			return nil, nil, nil, err
		}
	}
	return rc, rp, wc, nil
}

func readPreference(p *testformat.ReadPreference) (*readpref.ReadPref, error) {
	mode, err := readpref.ModeFromString(p.Mode)
	if err != nil {
		return nil, fmt.Errorf("readPreference: %w", err)
	}

	var opts []readpref.Option
	if len(p.TagSets) > 0 {
		sets := make([]tag.Set, 0, len(p.TagSets))
		for _, ts := range p.TagSets {
			m := make(map[string]string, len(ts))
			for k, v := range ts {
				m[k] = connstr.FormatOptionValue(v)
			}
			sets = append(sets, tag.NewTagSetFromMap(m))
		}
		opts = append(opts, readpref.WithTagSets(sets...))
	}
	if p.MaxStalenessSeconds != nil {
		opts = append(opts, readpref.WithMaxStaleness(time.Duration(*p.MaxStalenessSeconds)*time.Second))
	}
	if p.Hedge != nil && p.Hedge.Enabled != nil {
		opts = append(opts, readpref.WithHedgeEnabled(*p.Hedge.Enabled))
	}

	rp, err := readpref.New(mode, opts...)
	if err != nil {
		return nil, fmt.Errorf("readPreference: %w", err)
	}
	return rp, nil
}

func writeConcern(w *testformat.WriteConcern) (*writeconcern.WriteConcern, error) {
	wc := &writeconcern.WriteConcern{Journal: w.Journal}
	switch v := w.W.(type) {
	case nil:
	case int:
		wc.W = v
	case string:
		wc.W = v
	default:
		return nil, fmt.Errorf("writeConcern: w must be a number or a string, got %T", v)
	}
	if w.WTimeoutMS != nil {
		wc.WTimeout = time.Duration(*w.WTimeoutMS) * time.Millisecond
	}
	return wc, nil
}
