package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/countries-visited/internal/resilience"
)

// Open creates the store selected by driver ("sqlite" or "postgres") and
// runs its migration, retrying transient failures such as a locked SQLite
// file or a Postgres server that is still starting.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite", "":
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, st, resilience.DefaultRetryConfig()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func migrate(ctx context.Context, st Store, retry resilience.RetryConfig) error {
	retry.OnRetry = resilience.RetryLogger("store", "migrate")
	return resilience.Do(ctx, retry, st.Migrate)
}
