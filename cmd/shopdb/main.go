// Binary shopdb maintains the BetterSale database.
//
// Usage:
//
//	shopdb [flags]
//
// Flags:
//
//	-config             take the database settings from a shopagent config
//	-driver, -dsn       database settings when -config is not given
//	-init               create tables and seed the demo customer and catalog
//	-reset              drop every table first
//	-products N         generate N catalog products
//	-customers N        generate N customers with orders and carts
//	-seed S             random seed for generated data
//	-update-image-urls  point product images at the bucket
//	-verify             check that writes persist
//	-list-products      print the catalog with stock levels, narrowed by
//	                    -sport, -category and -limit
//	-customer ID        print a customer's details, orders and appointments
//	-order ID           print one order with shipping status
//
// Actions run in the order listed; table row counts are printed last.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/agent"
	"github.com/bitop-dev/shopagent/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "shopagent config file to read database settings from")
	driver := flag.String("driver", "sqlite", "database driver: sqlite | postgres")
	dsn := flag.String("dsn", "customer_service.db", "database DSN")
	initDB := flag.Bool("init", false, "create tables and seed demo data")
	reset := flag.Bool("reset", false, "drop all tables before anything else")
	products := flag.Int("products", 0, "number of products to generate")
	customers := flag.Int("customers", 0, "number of customers to generate")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for generated data")
	updateImages := flag.Bool("update-image-urls", false, "rewrite product image URLs")
	verify := flag.Bool("verify", false, "verify database persistence")
	listProducts := flag.Bool("list-products", false, "list catalog products")
	sport := flag.String("sport", "", "only list products for this sport")
	category := flag.String("category", "", "only list products in this category")
	limit := flag.Int("limit", 100, "maximum number of products to list")
	customerID := flag.String("customer", "", "print details for this customer id")
	orderID := flag.String("order", "", "print details for this order id")
	debug := flag.Bool("debug", false, "log SQL statements")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fatalf("load .env: %v", err)
	}

	dbCfg := store.Config{Driver: *driver, DSN: *dsn, Debug: *debug}
	if *configPath != "" {
		cfg, err := agent.LoadFileConfig(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		dbCfg = store.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Debug: cfg.Database.Debug || *debug}
	}

	log := logrus.New()
	log.Out = os.Stdout
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if *debug {
		log.Level = logrus.DebugLevel
	}

	st, err := store.Open(dbCfg, store.WithLogger(log))
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		fatalf("%v", err)
	}
	if *reset {
		if err := st.Reset(ctx); err != nil {
			fatalf("%v", err)
		}
	}
	if err := st.Migrate(ctx); err != nil {
		fatalf("%v", err)
	}
	if *initDB {
		if err := st.SeedDemo(ctx, *reset); err != nil {
			fatalf("%v", err)
		}
		log.Info("demo data seeded")
	}

	gen := st.NewGenerator(*seed)
	if *products > 0 {
		n, err := gen.Products(ctx, *products)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("added %d products\n", n)
	}
	if *customers > 0 {
		ids, err := gen.Customers(ctx, *customers)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("added %d customers\n", len(ids))
	}
	if *updateImages {
		n, err := st.UpdateImageURLs(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("updated %d image urls\n", n)
	}
	if *verify {
		if err := st.VerifyPersistence(ctx); err != nil {
			fatalf("verify: %v", err)
		}
		fmt.Println("persistence verified")
	}
	if *listProducts {
		if err := printProducts(ctx, st, store.ProductFilter{Sport: *sport, Category: *category, Limit: *limit}); err != nil {
			fatalf("%v", err)
		}
	}
	if *customerID != "" {
		if err := printCustomer(ctx, st, *customerID); err != nil {
			fatalf("%v", err)
		}
	}
	if *orderID != "" {
		order, err := st.OrderByID(ctx, *orderID)
		if err != nil {
			fatalf("%v", err)
		}
		printJSON("order", order)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	tables := make([]string, 0, len(stats))
	for t := range stats {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Printf("  %-26s %d\n", t, stats[t])
	}
}

func printProducts(ctx context.Context, st *store.Store, f store.ProductFilter) error {
	sports, err := st.Sports(ctx)
	if err != nil {
		return err
	}
	categories, err := st.Categories(ctx, f.Sport)
	if err != nil {
		return err
	}
	fmt.Printf("sports:     %v\n", sports)
	fmt.Printf("categories: %v\n", categories)

	products, err := st.Products(ctx, f)
	if err != nil {
		return err
	}
	for _, p := range products {
		inv, err := st.InventoryStatus(ctx, p.ID)
		if err != nil {
			return err
		}
		stock := fmt.Sprintf("%d in %s", inv.Quantity, inv.Location)
		if !inv.Available {
			stock = "out of stock, next shipment " + inv.NextShipment
		}
		fmt.Printf("  %-12s %-32s %-11s %-12s $%8.2f  %s\n", p.ID, p.Name, p.Sport, p.Category, p.Price, stock)
	}
	fmt.Printf("%d products\n", len(products))
	return nil
}

func printCustomer(ctx context.Context, st *store.Store, id string) error {
	info, err := st.CustomerInformation(ctx, id)
	if err != nil {
		return err
	}
	printJSON("customer", info)

	orders, err := st.OrderHistory(ctx, id, "")
	if err != nil {
		return err
	}
	printJSON("orders", orders)

	appts, err := st.Appointments(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("appointments (%d):\n", len(appts))
	for _, a := range appts {
		fmt.Printf("  %s %-6s %-16s %s\n", a.Date, a.TimeRange, a.ServiceType, a.Status)
	}
	return nil
}

func printJSON(label string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encode %s: %v", label, err)
	}
	fmt.Printf("%s:\n%s\n", label, b)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
