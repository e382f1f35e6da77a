// Package tokenblocking implements the key server's blocklist of enrollment
// tokens. An entry for subject S in group G issued at T blocks every token of
// S in G issued at or before T.
package tokenblocking
