package main

import "github.com/jungjaehoon-lifegamez/mama-sub/cmd"

func main() {
	cmd.Execute()
}
