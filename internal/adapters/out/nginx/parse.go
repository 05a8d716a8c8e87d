package nginx

import (
	"bufio"
	"bytes"
	"strings"
)

// parseServerNames returns the names of the first server_name directive
// in conf, in file order.
func parseServerNames(conf []byte) []string {
	return directiveArgs(conf, "server_name")
}

// parseUpstreamServers returns the address of every server line in an
// upstream block.
func parseUpstreamServers(conf []byte) []string {
	var servers []string
	inUpstream := false
	scanner := bufio.NewScanner(bytes.NewReader(conf))
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch {
		case fields[0] == "upstream":
			inUpstream = true
		case fields[0] == "}":
			inUpstream = false
		case inUpstream && fields[0] == "server" && len(fields) > 1:
			servers = append(servers, strings.TrimSuffix(fields[1], ";"))
		}
	}
	return servers
}

func directiveArgs(conf []byte, name string) []string {
	scanner := bufio.NewScanner(bytes.NewReader(conf))
	for scanner.Scan() {
		fields := strings.Fields(stripComment(scanner.Text()))
		if len(fields) < 2 || fields[0] != name {
			continue
		}
		args := make([]string, 0, len(fields)-1)
		for _, f := range fields[1:] {
			f = strings.TrimSuffix(f, ";")
			if f != "" {
				args = append(args, f)
			}
		}
		return args
	}
	return nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
