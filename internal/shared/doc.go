// Package shared holds helpers used by several packages that belong to no
// single layer. Only test support lives here today, in testutil.
package shared
