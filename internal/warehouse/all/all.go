// Package all links every warehouse backend into the binary.
package all

import (
	_ "github.com/SumanthReddy1234/datalakes/internal/warehouse/mssql"
	_ "github.com/SumanthReddy1234/datalakes/internal/warehouse/postgres"
	_ "github.com/SumanthReddy1234/datalakes/internal/warehouse/sqlite"
)
