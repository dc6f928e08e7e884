package throttle_test

import (
	"fmt"

	"evhttp/client/throttle"
)

func Example() {
	limiter, err := throttle.New(5, 1)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(limiter.Allow())
	fmt.Println(limiter.Allow())
	// Output:
	// true
	// false
}
