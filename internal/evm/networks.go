package evm

import "strings"

// Known network ids.
const (
	NetworkMainnet = 1
	NetworkGnosis  = 100
	NetworkLocal   = 31337
)

var defaultExplorers = map[int64]string{
	NetworkMainnet: "https://etherscan.io",
	NetworkGnosis:  "https://gnosisscan.io",
	NetworkLocal:   "http://localhost:4000",
}

// ExplorerURL returns the block explorer base URL for networkID. Entries in
// overrides win over the built-in table. Unknown networks fall back to mainnet.
func ExplorerURL(networkID int64, overrides map[int64]string) string {
	if u, ok := overrides[networkID]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	if u, ok := defaultExplorers[networkID]; ok {
		return u
	}
	return defaultExplorers[NetworkMainnet]
}
