package entity

import "fmt"

func TaskLink(id int64) string {
	return fmt.Sprintf("/tasks/%d", id)
}
