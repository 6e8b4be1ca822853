// Command tasktrace inspects trace archives and runs a small traced demo.
package main

func main() {
	Execute()
}
