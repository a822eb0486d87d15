// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/lifespan/cmd/lifespand"

func main() {
	cmd.Execute()
}
