// Command import_catalog scrapes product pages into the item catalog.
//
//	import_catalog [-gender male] [-category tops] [-file urls.txt] [-dry-run] [url ...]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/raushankrgupta/nima-backend/bootstrap"
	"github.com/raushankrgupta/nima-backend/catalog"
	"github.com/raushankrgupta/nima-backend/config"
	"github.com/raushankrgupta/nima-backend/logging"
)

func main() {
	gender := flag.String("gender", "", "gender override for every imported item")
	category := flag.String("category", "", "category override for every imported item")
	file := flag.String("file", "", "file with one product url per line")
	dryRun := flag.Bool("dry-run", false, "print scraped products without writing the catalog")
	browser := flag.Bool("browser", true, "fall back to headless chrome for blocked pages")
	flag.Parse()

	config.LoadConfig()
	log := logging.New(config.IsProduction())

	urls := flag.Args()
	if *file != "" {
		fromFile, err := readURLs(*file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fetcher := catalog.NewFetcher(*browser, log)

	if *dryRun {
		im := catalog.NewImporter(nil, nil, fetcher, log)
		for _, u := range urls {
			product, err := im.Scrape(ctx, u)
			if err != nil {
				log.Error(ctx, "scrape failed", "url", u, "error", err)
				continue
			}
			b, _ := json.MarshalIndent(product, "", "  ")
			fmt.Println(string(b))
		}
		return
	}

	db, err := bootstrap.OpenStore(ctx, log)
	if err != nil {
		log.Error(ctx, "failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close(context.Background())

	files, err := bootstrap.OpenFileStore(ctx, log)
	if err != nil {
		log.Error(ctx, "failed to open file storage", "error", err)
		os.Exit(1)
	}

	im := catalog.NewImporter(db.Items(), files, fetcher, log)
	failed := 0
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		item, err := im.Import(ctx, catalog.ImportRequest{URL: u, Gender: *gender, Category: *category})
		if err != nil {
			log.Error(ctx, "import failed", "url", u, "error", err)
			failed++
			continue
		}
		log.Info(ctx, "imported", "id", item.ID.Hex(), "name", item.Name, "images", len(item.ImageURLs))
	}

	log.Info(ctx, "catalog import finished", "total", len(urls), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
