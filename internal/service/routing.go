package service

import (
	"fmt"
	"strings"
)

// Route selects the provider and settlement currency for a payout
// destination.
type Route struct {
	ProviderID     string
	TargetCurrency string
}

// RouteRule binds one bank-account country/currency pair to a route. Currency
// may be "*" to match any currency in that country.
type RouteRule struct {
	Country  string
	Currency string
	Route    Route
}

// Router is a stateless lookup from a bank account's country/currency to
// {provider, target currency}. The table is externally configured.
type Router struct {
	table map[string]Route
}

func NewRouter(rules []RouteRule) *Router {
	table := make(map[string]Route, len(rules))
	for _, rule := range rules {
		table[routeKey(rule.Country, rule.Currency)] = rule.Route
	}
	return &Router{table: table}
}

// Resolve returns the route for the destination, preferring an exact
// country/currency match over a country wildcard.
func (r *Router) Resolve(country, currency string) (Route, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if route, ok := r.table[routeKey(country, currency)]; ok {
		return route, nil
	}
	if route, ok := r.table[routeKey(country, "*")]; ok {
		if route.TargetCurrency == "*" {
			route.TargetCurrency = currency
		}
		return route, nil
	}
	return Route{}, fmt.Errorf("no payout route for %s/%s", country, currency)
}

func routeKey(country, currency string) string {
	return strings.ToUpper(country) + "|" + strings.ToUpper(currency)
}

// ParseRoutingTable parses "US:USD=transferzen:USD,NG:*=flux:NGN" into route
// rules.
func ParseRoutingTable(raw string) ([]RouteRule, error) {
	var rules []RouteRule
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid route entry %q", entry)
		}
		src := strings.SplitN(strings.TrimSpace(parts[0]), ":", 2)
		dst := strings.SplitN(strings.TrimSpace(parts[1]), ":", 2)
		if len(src) != 2 || len(dst) != 2 {
			return nil, fmt.Errorf("invalid route entry %q", entry)
		}
		rules = append(rules, RouteRule{
			Country:  strings.ToUpper(src[0]),
			Currency: strings.ToUpper(src[1]),
			Route: Route{
				ProviderID:     strings.ToLower(dst[0]),
				TargetCurrency: strings.ToUpper(dst[1]),
			},
		})
	}
	return rules, nil
}
