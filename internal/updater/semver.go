package updater

import (
	"fmt"
	"strconv"
	"strings"
)

// Semver is a major.minor.patch version. Pre-release and build metadata
// are not understood; release tags never carry them.
type Semver struct {
	Major int
	Minor int
	Patch int
}

// ParseSemver parses "1.2.3", tolerating a leading "v".
func ParseSemver(s string) (Semver, error) {
	fields := strings.Split(strings.TrimPrefix(s, "v"), ".")
	if len(fields) != 3 {
		return Semver{}, fmt.Errorf("malformed version %q", s)
	}

	nums := make([]int, 3)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Semver{}, fmt.Errorf("malformed version %q", s)
		}
		nums[i] = n
	}
	return Semver{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders two versions: -1 when v is older than other, 0 when
// equal, 1 when newer.
func (v Semver) Compare(other Semver) int {
	for _, d := range []int{v.Major - other.Major, v.Minor - other.Minor, v.Patch - other.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

// LessThan reports whether v is strictly older than other.
func (v Semver) LessThan(other Semver) bool {
	return v.Compare(other) < 0
}
