package agent

import (
	"math"
	"testing"

	"github.com/Sonuanand07/AI-ML-Marketing-AGENT-system/internal/memory"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name string
		in   CampaignInput
		want string
	}{
		{"scale", CampaignInput{Spend: 1000, Revenue: 3000, Impressions: 10000, Clicks: 400, Conversions: 40}, DecisionScaleBudget},
		{"pause", CampaignInput{Spend: 1000, Revenue: 200, Impressions: 100000, Clicks: 100, Conversions: 1}, DecisionPause},
		{"creative", CampaignInput{Spend: 1000, Revenue: 1500, Impressions: 100000, Clicks: 800, Conversions: 10}, DecisionOptimizeCreative},
		{"maintain", CampaignInput{Spend: 1000, Revenue: 1200, Impressions: 10000, Clicks: 300, Conversions: 6}, DecisionMaintain},
		{"no data", CampaignInput{}, DecisionOptimizeCreative},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reasons := Decide(ComputeMetrics(tc.in))
			if got != tc.want {
				t.Errorf("decision = %s, want %s (%v)", got, tc.want, reasons)
			}
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(CampaignInput{Spend: 500, Revenue: 750, Impressions: 2000, Clicks: 50, Conversions: 5})
	if math.Abs(m.CTR-0.025) > 1e-12 || math.Abs(m.ConversionRate-0.1) > 1e-12 || math.Abs(m.ROI-0.5) > 1e-12 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestOptimizeRecordsMemory(t *testing.T) {
	r := newTestRegistry(t)
	a := mustRegister(t, r, "opt", KindOptimization)

	res, err := a.Optimize(CampaignInput{
		CampaignID: "spring", Channel: "email", Spend: 1000, Revenue: 4000,
		Impressions: 10000, Clicks: 500, Conversions: 50,
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Decision != DecisionScaleBudget || res.HistoricalConfidence != -1 {
		t.Errorf("result = %+v", res)
	}

	lt, _ := a.Memory().Contents(memory.TierLongTerm)
	if len(lt[memory.CollCampaignHistory]) != 1 || len(lt[memory.CollPerformanceMetrics]) != 3 {
		t.Errorf("long term = %d campaigns, %d metrics",
			len(lt[memory.CollCampaignHistory]), len(lt[memory.CollPerformanceMetrics]))
	}
	ep, _ := a.Memory().Contents(memory.TierEpisodic)
	if len(ep[memory.CollDecisionOutcomes]) != 1 || len(ep[memory.CollContextualLearnings]) != 1 {
		t.Errorf("episodic = %d decisions, %d learnings",
			len(ep[memory.CollDecisionOutcomes]), len(ep[memory.CollContextualLearnings]))
	}

	// A second scale decision makes a pattern that later runs consult.
	if _, err := a.Optimize(CampaignInput{
		CampaignID: "summer", Channel: "email", Spend: 1000, Revenue: 3000,
		Impressions: 10000, Clicks: 500, Conversions: 40,
	}); err != nil {
		t.Fatal(err)
	}
	a.Memory().Consolidate()
	nodes, _ := a.Memory().KnowledgeGraph()
	if len(nodes) != 1 || nodes[0].Concept != "email campaigns" {
		t.Errorf("knowledge = %+v", nodes)
	}

	third, err := a.Optimize(CampaignInput{
		CampaignID: "autumn", Channel: "email", Spend: 1000, Revenue: 3000,
		Impressions: 10000, Clicks: 500, Conversions: 40,
	})
	if err != nil {
		t.Fatal(err)
	}
	if third.HistoricalConfidence != 1.0 {
		t.Errorf("historical confidence = %v, want 1.0", third.HistoricalConfidence)
	}
}
