package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterResolve(t *testing.T) {
	router := NewRouter([]RouteRule{
		{Country: "US", Currency: "USD", Route: Route{ProviderID: "transferzen", TargetCurrency: "USD"}},
		{Country: "NG", Currency: "*", Route: Route{ProviderID: "flux", TargetCurrency: "NGN"}},
		{Country: "IN", Currency: "*", Route: Route{ProviderID: "flux", TargetCurrency: "*"}},
	})

	route, err := router.Resolve("us", "usd")
	require.NoError(t, err)
	assert.Equal(t, Route{ProviderID: "transferzen", TargetCurrency: "USD"}, route)

	// Country wildcard matches any currency.
	route, err = router.Resolve("NG", "USD")
	require.NoError(t, err)
	assert.Equal(t, Route{ProviderID: "flux", TargetCurrency: "NGN"}, route)

	// A wildcard target settles in the requested currency.
	route, err = router.Resolve("IN", "INR")
	require.NoError(t, err)
	assert.Equal(t, Route{ProviderID: "flux", TargetCurrency: "INR"}, route)

	_, err = router.Resolve("FR", "EUR")
	require.Error(t, err)
}

func TestRouterPrefersExactMatch(t *testing.T) {
	router := NewRouter([]RouteRule{
		{Country: "GB", Currency: "*", Route: Route{ProviderID: "flux", TargetCurrency: "GBP"}},
		{Country: "GB", Currency: "GBP", Route: Route{ProviderID: "transferzen", TargetCurrency: "GBP"}},
	})

	route, err := router.Resolve("GB", "GBP")
	require.NoError(t, err)
	assert.Equal(t, "transferzen", route.ProviderID)

	route, err = router.Resolve("GB", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "flux", route.ProviderID)
}

func TestParseRoutingTable(t *testing.T) {
	rules, err := ParseRoutingTable("US:USD=TransferZen:USD, ng:*=flux:ngn")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, RouteRule{Country: "US", Currency: "USD", Route: Route{ProviderID: "transferzen", TargetCurrency: "USD"}}, rules[0])
	assert.Equal(t, RouteRule{Country: "NG", Currency: "*", Route: Route{ProviderID: "flux", TargetCurrency: "NGN"}}, rules[1])

	_, err = ParseRoutingTable("US:USD")
	require.Error(t, err)

	_, err = ParseRoutingTable("USUSD=transferzen:USD")
	require.Error(t, err)

	rules, err = ParseRoutingTable("")
	require.NoError(t, err)
	assert.Empty(t, rules)
}
