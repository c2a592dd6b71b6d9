//go:build !linux

package csvdir

import "os"

func adviseSequential(*os.File) {}
