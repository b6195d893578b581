package bridge

import "strings"

// AppName derives the catalog-visible service name from a hierarchical
// app id: drop the leading path separator, then replace interior
// separators with "-".
//
//	AppName("/a/b/c") == "a-b-c"
//	AppName("/x")     == "x"
func AppName(appID string) string {
	trimmed := strings.TrimPrefix(appID, "/")
	return strings.ReplaceAll(trimmed, "/", "-")
}
