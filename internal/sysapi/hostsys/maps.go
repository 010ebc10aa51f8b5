package hostsys

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// parseMaps reads /proc/<pid>/maps format: one region per line,
//
//	start-end perms offset dev inode [pathname]
func parseMaps(r io.Reader) ([]sysapi.AddressRegion, error) {
	var regions []sysapi.AddressRegion
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		region, err := parseMapsLine(line)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading maps: %w", err)
	}
	return regions, nil
}

func parseMapsLine(line string) (sysapi.AddressRegion, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return sysapi.AddressRegion{}, fmt.Errorf("malformed maps line %q", line)
	}

	begin, end, err := parseAddressRange(fields[0])
	if err != nil {
		return sysapi.AddressRegion{}, err
	}

	name := ""
	if len(fields) >= 6 {
		name = fields[5]
	}
	return sysapi.AddressRegion{Name: name, Base: begin, Size: end - begin}, nil
}

func parseAddressRange(s string) (uint64, uint64, error) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return 0, 0, fmt.Errorf("malformed address range %q", s)
	}
	begin, err := strconv.ParseUint(s[:dash], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed address range %q: %w", s, err)
	}
	end, err := strconv.ParseUint(s[dash+1:], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed address range %q: %w", s, err)
	}
	return begin, end, nil
}

// modulesFromMaps derives the loaded module list: the lowest executable
// file-backed mapping of each distinct file.
func modulesFromMaps(r io.Reader) ([]sysapi.Module, error) {
	bases := make(map[string]uint64)
	var order []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		perms, file := fields[1], fields[5]
		if !strings.Contains(perms, "x") || !strings.HasPrefix(file, "/") {
			continue
		}
		begin, _, err := parseAddressRange(fields[0])
		if err != nil {
			continue
		}
		if existing, ok := bases[file]; !ok || begin < existing {
			if !ok {
				order = append(order, file)
			}
			bases[file] = begin
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading maps: %w", err)
	}

	modules := make([]sysapi.Module, 0, len(order))
	for _, file := range order {
		modules = append(modules, sysapi.Module{
			Name: path.Base(file),
			Base: bases[file],
		})
	}
	return modules, nil
}
