package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credleak/internal/collect"
	"github.com/sells-group/credleak/internal/dedup"
	"github.com/sells-group/credleak/internal/directory"
	"github.com/sells-group/credleak/internal/enrich"
	"github.com/sells-group/credleak/internal/fetcher"
	"github.com/sells-group/credleak/internal/filter"
	"github.com/sells-group/credleak/internal/monitoring"
	"github.com/sells-group/credleak/internal/normalize"
	"github.com/sells-group/credleak/internal/pipeline"
	"github.com/sells-group/credleak/internal/resilience"
	"github.com/sells-group/credleak/internal/store"
	"github.com/sells-group/credleak/internal/validate"
)

// pipelineEnv holds the store, the enrichment collaborators and the
// pipeline needed by the import, serve and dlq commands.
type pipelineEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Stager    *fetcher.Stager
	Alerter   *monitoring.Alerter
	Validator *validate.Validator
	Enrich    *enrichEnv
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Enrich != nil {
		pe.Enrich.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// enrichEnv is the enrichment chain and the lookups behind it.
type enrichEnv struct {
	Chain     *enrich.Chain
	Directory directory.Directory
	VIP       *enrich.VIP

	closeFn func()
}

// Close releases the directory cache connection, if any.
func (ee *enrichEnv) Close() {
	if ee.closeFn != nil {
		ee.closeFn()
		ee.closeFn = nil
	}
}

// initEnrichment builds the directory lookup and the enrichment chain.
func initEnrichment() (*enrichEnv, error) {
	dir, closeFn, err := initDirectory()
	if err != nil {
		return nil, err
	}

	vip := enrich.LoadVIP(cfg.VIP.ListPath)
	router, err := enrich.LoadAbuseRouter(cfg.Abuse.RulesPath)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, eris.Wrap(err, "load abuse rules")
	}

	chain := enrich.NewChain(cfg.Ingest.EnrichTimeout(),
		vip,
		enrich.NewDirectory(dir),
		enrich.NewClassifier(cfg.Classify.InternalDomains),
		enrich.CredentialType{},
		router,
	)
	zap.L().Debug("enrichment chain ready", zap.Strings("enrichers", chain.Names()))

	return &enrichEnv{Chain: chain, Directory: dir, VIP: vip, closeFn: closeFn}, nil
}

// initDirectory builds the directory lookup: LDAP behind rate limiting,
// retries and a circuit breaker, cached in Redis when configured. Without
// an LDAP URL every lookup fails and records get the Unknown group.
func initDirectory() (directory.Directory, func(), error) {
	if cfg.Directory.URL == "" {
		zap.L().Warn("directory.url not set, directory enrichment disabled")
		return directory.Unavailable{}, nil, nil
	}

	ldapDir, err := directory.NewLDAP(cfg.Directory)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init directory")
	}

	var dir directory.Directory = directory.NewResilient(
		ldapDir,
		directory.NewLimiter(cfg.Directory.RatePerSec, cfg.Directory.Burst),
		resilience.FromRetryConfig(cfg.Retry),
		resilience.FromCircuitConfig("directory", cfg.Circuit),
	)

	if cfg.Redis.URL == "" {
		return dir, nil, nil
	}
	client, err := directory.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init redis")
	}
	zap.L().Info("directory lookups cached in redis", zap.Int("ttl_secs", cfg.Redis.TTLSecs))
	closeFn := func() { _ = client.Close() }
	return directory.NewCached(dir, client, time.Duration(cfg.Redis.TTLSecs)*time.Second), closeFn, nil
}

// initStager builds the upload stager with HTTP and FTP downloads.
func initStager() *fetcher.Stager {
	timeout := time.Duration(cfg.Ingest.FetchTimeoutSecs) * time.Second
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: "credleak/" + version,
		Timeout:   timeout,
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout})
	return fetcher.NewStager(cfg.Server.UploadDir, cfg.Ingest.MaxFileBytes, httpFetcher, ftpFetcher)
}

// initPipeline sets up the store and every pipeline stage. mode selects
// the config checks ("import" or "serve"). Callers should defer
// env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Validator: validate.New()}

	dd, err := dedup.New(st, dedup.Scope(cfg.Ingest.DedupScope))
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init dedup")
	}

	env.Enrich, err = initEnrichment()
	if err != nil {
		env.Close()
		return nil, err
	}

	var flt filter.Filter = filter.Passthrough{}
	if len(cfg.Ingest.BlockedDomains) > 0 {
		flt = filter.NewDomainBlocklist(cfg.Ingest.BlockedDomains)
	}

	env.Pipeline = pipeline.New(
		pipeline.Options{
			Concurrency:   cfg.Ingest.Concurrency,
			DefaultSource: cfg.Ingest.DefaultSource,
			DLQMaxRetries: cfg.Ingest.DLQMaxRetries,
			Collect: collect.Options{
				NullTokens: cfg.Ingest.NullTokens,
				MaxBytes:   cfg.Ingest.MaxFileBytes,
				Charset:    cfg.Ingest.Charset,
			},
		},
		st,
		normalize.NewRegistry(env.Validator),
		flt,
		dd,
		env.Enrich.Chain,
	)
	env.Stager = initStager()
	env.Alerter = monitoring.NewAlerter(cfg.Alert)

	return env, nil
}
