package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gen"
	"gorm.io/gorm"
)

// townTables are the tables owned by the simulation, in migration order.
var townTables = []string{
	"worlds",
	"engines",
	"inputs",
	"world_entities",
	"messages",
	"location_histories",
	"memories",
}

// Entity documents, embeddings and packed histories stay raw bytes; the
// repositories decode them.
var dataTypes = map[string]func(gorm.ColumnType) string{
	"jsonb": func(gorm.ColumnType) string { return "[]byte" },
	"bytea": func(gorm.ColumnType) string { return "[]byte" },
}

func main() {
	var dsn, out, tables string
	flag.StringVar(&dsn, "dsn", os.Getenv("TOWN_DB_DSN"), "postgres dsn")
	flag.StringVar(&out, "out", "internal/adapter/repo/gorm/model", "output dir for generated models")
	flag.StringVar(&tables, "tables", strings.Join(townTables, ","), "comma-separated tables to generate")
	flag.Parse()

	if dsn == "" {
		log.Fatal("missing --dsn or TOWN_DB_DSN")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:       out,
		ModelPkgPath:  "model",
		FieldNullable: true,
	})
	g.UseDB(db)
	g.WithDataTypeMap(dataTypes)

	var n int
	for _, table := range strings.Split(tables, ",") {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		var opts []gen.ModelOpt
		if table == "engines" {
			// current_time is reserved in postgres; the column is current_ts.
			opts = append(opts, gen.FieldRename("current_ts", "CurrentTime"))
		}
		g.GenerateModel(table, opts...)
		n++
	}
	g.Execute()

	fmt.Printf("generated %d gorm models at %s\n", n, out)
}
