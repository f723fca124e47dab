package main

import (
	"net"
	"strings"
)

func fiberListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func containsLine(report, line string) bool {
	for _, l := range strings.Split(report, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

func containsPrefix(report, prefix string) bool {
	for _, l := range strings.Split(report, "\n") {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
