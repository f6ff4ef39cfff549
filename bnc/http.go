package bnc

import (
	"github.com/plume-lab/plume/generichttp"
	"github.com/plume-lab/plume/generichttp/delaygen"
)

// HTTPWrapper provides HTTP bindings on top of a Generator
type HTTPWrapper struct {
	*Generator

	// RouteTable maps method, path pairs to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(g *Generator) HTTPWrapper {
	w := HTTPWrapper{Generator: g, RouteTable: generichttp.RouteTable{}}
	delaygen.HTTPGenerator(g, w.RouteTable)
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}
