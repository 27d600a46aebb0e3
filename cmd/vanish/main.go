package main

import "go.minekube.com/vanish/pkg/cmd/vanish"

func main() {
	vanish.Execute()
}
