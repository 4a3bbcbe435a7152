package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Quick queue overview",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := mustConfig()
	if err != nil {
		return err
	}
	q, err := mustQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	states, err := q.ListStates()
	if err != nil {
		return err
	}

	if len(states) == 0 {
		fmt.Printf("No tasks. Run: %sgarra task \"your request\"%s\n", colorCyan, colorReset)
		return nil
	}

	counts := map[string]int{}
	var failed []string
	for _, st := range states {
		counts[st.Status]++
		if st.Status == "failed" {
			failed = append(failed, fmt.Sprintf("%s: %s", st.TaskID, st.Error))
		}
	}

	fmt.Printf("%sTasks: %d total%s\n", colorBold, len(states), colorReset)
	fmt.Printf("  %-12s %s%d%s\n", "pending:", colorWhite, counts["pending"], colorReset)
	fmt.Printf("  %-12s %s%d%s\n", "claimed:", colorYellow, counts["claimed"], colorReset)
	fmt.Printf("  %-12s %s%d%s\n", "processing:", colorBlue, counts["processing"], colorReset)
	fmt.Printf("  %-12s %s%d%s\n", "completed:", colorGreen, counts["completed"], colorReset)
	fmt.Printf("  %-12s %s%d%s\n", "failed:", colorRed, counts["failed"], colorReset)

	if len(failed) > 0 {
		fmt.Printf("\n%s⚠  Failed tasks:%s\n", colorRed+colorBold, colorReset)
		for _, f := range failed {
			fmt.Printf("  %s\n", f)
		}
	}

	return nil
}
