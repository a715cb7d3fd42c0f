// Package util holds small helpers shared by the public packages.
package util
