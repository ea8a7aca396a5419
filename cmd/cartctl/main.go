// cartctl is a CLI tool for driving a running cartd instance.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl get      [-server URL]
//	cartctl refresh  [-server URL]
//	cartctl add      -items SKU:QTY[,SKU:QTY...]
//	cartctl adjust   -items LINE_ID:QTY[,LINE_ID:QTY...]
//	cartctl remove   -ids LINE_ID[,LINE_ID...]
//	cartctl products
//	cartctl search   key=value [key=value...]
//
// Examples:
//
//	cartctl add -items TEE-S:2,CAP:1
//	LINE=$(cartctl get -q | jq -r '.lineItems[0].id')
//	cartctl adjust -items "$LINE:5"
//	cartctl search category=shirts color=blue
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorCyan, colorGray = "", "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "get":
		runGet(args)
	case "refresh":
		runRefresh(args)
	case "add":
		runAdd(args)
	case "adjust":
		runAdjust(args)
	case "remove":
		runRemove(args)
	case "products":
		runProducts(args)
	case "search":
		runSearch(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cart service command line

Usage:
  cartctl <command> [options]

Commands:
  get       Show the local cart snapshot
  refresh   Re-read the cart from the platform
  add       Add SKUs (quantities add to existing lines)
  adjust    Set line items to exact quantities
  remove    Remove line items
  products  List the catalog
  search    Find products whose fields equal all key=value pairs

Examples:
  cartctl add -items TEE-S:2,CAP:1
  cartctl adjust -items li_1234:5
  cartctl remove -ids li_1234
  cartctl search category=shirts

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("CARTD_URL", "http://localhost:8080"), "cartd base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the response body")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runGet(args []string) {
	fs := newFlagSet("get", "get [options]")
	parseFlags(fs, args)

	body, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printCart(body)
}

func runRefresh(args []string) {
	fs := newFlagSet("refresh", "refresh [options]")
	parseFlags(fs, args)

	body, err := doRequest("POST", "/cart/refresh", nil)
	if err != nil {
		fatal("Failed to refresh cart: %v", err)
	}
	printCart(body)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -items SKU:QTY[,SKU:QTY...] [options]")
	var items string
	fs.StringVar(&items, "items", "", "Comma-separated SKU:QTY pairs (QTY defaults to 1)")
	parseFlags(fs, args)

	pairs, err := parsePairs(items)
	if err != nil || len(pairs) == 0 {
		fs.Usage()
		os.Exit(1)
	}

	reqItems := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		reqItems[i] = map[string]any{"sku": p.key, "quantity": p.qty}
	}

	body, err := doRequest("POST", "/cart/items", map[string]any{"items": reqItems})
	if err != nil {
		fatal("Failed to add items: %v", err)
	}
	printSuccess("Added %d SKU(s)", len(pairs))
	printCart(body)
}

func runAdjust(args []string) {
	fs := newFlagSet("adjust", "adjust -items LINE_ID:QTY[,LINE_ID:QTY...] [options]")
	var items string
	fs.StringVar(&items, "items", "", "Comma-separated LINE_ID:QTY pairs")
	parseFlags(fs, args)

	pairs, err := parsePairs(items)
	if err != nil || len(pairs) == 0 {
		fs.Usage()
		os.Exit(1)
	}

	reqItems := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		reqItems[i] = map[string]any{"id": p.key, "quantity": p.qty}
	}

	body, err := doRequest("PATCH", "/cart/items", map[string]any{"items": reqItems})
	if err != nil {
		fatal("Failed to adjust items: %v", err)
	}
	printSuccess("Adjusted %d line(s)", len(pairs))
	printCart(body)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -ids LINE_ID[,LINE_ID...] [options]")
	var ids string
	fs.StringVar(&ids, "ids", "", "Comma-separated line item IDs")
	parseFlags(fs, args)

	list := splitList(ids)
	if len(list) == 0 {
		fs.Usage()
		os.Exit(1)
	}

	body, err := doRequest("POST", "/cart/items/remove", map[string]any{"ids": list})
	if err != nil {
		fatal("Failed to remove items: %v", err)
	}
	printSuccess("Removed %d line(s)", len(list))
	printCart(body)
}

// =============================================================================
// CATALOG COMMANDS
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "products [options]")
	parseFlags(fs, args)

	body, err := doRequest("GET", "/products", nil)
	if err != nil {
		fatal("Failed to list products: %v", err)
	}
	printBody(body)
}

func runSearch(args []string) {
	fs := newFlagSet("search", "search key=value [key=value...] [options]")
	parseFlags(fs, args)

	query := url.Values{}
	for _, arg := range fs.Args() {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			fatal("Invalid search term %q, want key=value", arg)
		}
		query.Set(key, value)
	}

	body, err := doRequest("GET", "/products/search?"+query.Encode(), nil)
	if err != nil {
		fatal("Failed to search products: %v", err)
	}

	var result struct {
		Match    string            `json:"match"`
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &result); err == nil && !quiet {
		switch result.Match {
		case "one":
			printSuccess("Exactly one match")
		default:
			printInfo("%d match(es)", len(result.Products))
		}
	}
	printBody(body)
}

// =============================================================================
// HELPERS
// =============================================================================

type pair struct {
	key string
	qty int
}

// parsePairs parses "A:2,B" into pairs; a missing quantity means 1.
func parsePairs(s string) ([]pair, error) {
	var out []pair
	for _, part := range splitList(s) {
		key, qtyStr, hasQty := strings.Cut(part, ":")
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(qtyStr)
			if err != nil {
				return nil, fmt.Errorf("invalid quantity in %q: %w", part, err)
			}
			qty = n
		}
		out = append(out, pair{key: key, qty: qty})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func doRequest(method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
		fmt.Fprintf(os.Stderr, "%s→ %s %s%s\n", colorGray, method, path, colorReset)
		if len(reqJSON) > 0 {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", colorGray, reqJSON, colorReset)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "%s← %d (%s) request_id=%s%s\n",
			colorGray, resp.StatusCode, duration.Round(time.Millisecond), resp.Header.Get("X-Request-ID"), colorReset)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code != "" {
			return nil, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printCart prints a one-line summary followed by the cart JSON.
func printCart(body []byte) {
	if !quiet {
		var c struct {
			ID               string            `json:"id"`
			Status           string            `json:"status"`
			CurrencyCode     string            `json:"currencyCode"`
			TotalAmountCents int64             `json:"totalAmountCents"`
			LineItems        []json.RawMessage `json:"lineItems"`
		}
		if err := json.Unmarshal(body, &c); err == nil {
			fmt.Printf("  Cart: %s%s%s (%s), %d line(s), total %s%s%s\n",
				colorCyan, c.ID, colorReset, c.Status, len(c.LineItems),
				colorGreen, formatCents(c.TotalAmountCents, c.CurrencyCode), colorReset)
		}
	}
	printBody(body)
}

func printBody(body []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		os.Stdout.Write(body)
		fmt.Println()
		return
	}
	fmt.Println(out.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
