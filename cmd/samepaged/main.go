// Command samepaged runs the same-page merging service.
package main

func main() {
	execute()
}
