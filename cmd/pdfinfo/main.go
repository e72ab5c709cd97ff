// Command pdfinfo opens a PDF and prints its version, page count,
// information dictionary, and any defects noticed while reading it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pdflib/document"
	"pdflib/extractor"
	"pdflib/ir/raw"
)

func main() {
	var (
		password = flag.String("password", "", "password for encrypted files")
		strict   = flag.Bool("strict", false, "fail on any structural defect")
		pages    = flag.Bool("pages", false, "print the media box of every page")
		outlines = flag.Bool("outlines", false, "print the bookmark tree")
		fonts    = flag.Bool("fonts", false, "print the fonts used by pages")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfinfo [flags] <file.pdf>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *password, *strict, *pages, *outlines, *fonts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}
}

func run(path, password string, strict, listPages, listOutlines, listFonts bool) error {
	doc, err := document.Open(path, &document.Options{
		StrictMode: strict,
		Password:   password,
	})
	if err != nil {
		return err
	}
	defer doc.Close()

	ctx := context.Background()
	fmt.Printf("Version:    %s\n", orDash(doc.Version()))
	fmt.Printf("Pages:      %d\n", doc.PageCount())
	fmt.Printf("Encrypted:  %v\n", doc.IsEncrypted())

	info := doc.Info(ctx)
	printField("Title", info.Title)
	printField("Author", info.Author)
	printField("Subject", info.Subject)
	printField("Keywords", strings.Join(info.Keywords, ", "))
	printField("Creator", info.Creator)
	printField("Producer", info.Producer)
	printField("Created", info.CreationDate)
	printField("Modified", info.ModDate)

	if conds := doc.Conditions(); len(conds) > 0 {
		fmt.Println("Conditions:")
		for _, c := range conds {
			fmt.Printf("  - %s\n", c)
		}
	}

	if listPages {
		for i := 0; i < doc.PageCount(); i++ {
			page, err := doc.Page(ctx, i)
			if err != nil {
				fmt.Printf("Page %d:     error: %v\n", i+1, err)
				continue
			}
			fmt.Printf("Page %d:     mediabox %s rotate %d\n",
				i+1, boxString(page), page.Rotate)
		}
	}

	if listOutlines || listFonts {
		ex, err := extractor.New(ctx, doc)
		if err != nil {
			return err
		}
		if listOutlines {
			fmt.Println("Outline:")
			for _, entry := range ex.TableOfContents(ctx) {
				loc := "-"
				if entry.Page >= 0 {
					loc = entry.Label
				}
				fmt.Printf("  %s%s (page %s)\n",
					strings.Repeat("  ", entry.Depth), entry.Title, loc)
			}
		}
		if listFonts {
			fmt.Println("Fonts:")
			for _, f := range ex.Fonts(ctx) {
				unicode := ""
				if f.HasToUnicode {
					unicode = " +ToUnicode"
				}
				fmt.Printf("  %s (%s)%s on %d page(s)\n",
					f.BaseFont, f.Subtype, unicode, len(f.Pages))
			}
		}
	}
	return nil
}

func printField(name, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-11s %s\n", name+":", value)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func boxString(p *document.Page) string {
	if p.MediaBox == nil {
		return "-"
	}
	parts := make([]string, 0, len(p.MediaBox.Items))
	for _, it := range p.MediaBox.Items {
		if n, ok := it.(raw.NumberObj); ok {
			parts = append(parts, fmt.Sprintf("%g", n.Float()))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
