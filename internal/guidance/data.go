package guidance

import "github.com/BTreeMap/Skopos/internal/models"

// MinimalPhrase is returned only when no phrase exists anywhere in the library.
const MinimalPhrase = "讓我們深呼吸，慢慢來..."

var defaultEntries = []Entry{
	// initial
	{models.PhaseInitial, models.TechniqueBodyFocus, []string{
		"現在讓我們先從身體開始...閉上眼睛，感受一下您的呼吸。",
		"我們從最簡單的開始...現在您的肩膀是緊繃的還是放鬆的？",
		"讓我們把注意力放在身體上...哪個部位現在感覺最明顯？",
	}},
	{models.PhaseInitial, models.TechniqueEmotionBasic, []string{
		"沒關係，很多人都不太清楚自己的感受...現在如果用「開心」、「難過」、「生氣」來選，哪個比較接近？",
		"我們可以從很簡單的開始...現在的心情是重重的還是輕輕的？",
		"讓我們用顏色來形容...現在內心是什麼顏色的感覺？",
	}},
	{models.PhaseInitial, models.TechniqueBreathing, []string{
		"讓我們先深呼吸三次...注意氣息進出的感覺。",
		"當您吸氣的時候，有什麼感覺浮現嗎？",
		"呼吸時，注意胸口或肚子的感覺...有什麼不一樣嗎？",
	}},
	{models.PhaseInitial, models.TechniquePatternInterruption, []string{
		"我注意到您提到了「總是」或「每次都」...當時您有什麼體驗或情緒？",
		"您說「習慣」這樣反應...能分享一下最近一次是什麼時候、在哪裡發生的嗎？",
		"您提到「自然反應」...想想看上次發生時，當下您的身體有什麼感覺？",
	}},
	{models.PhaseInitial, models.TechniqueAutomaticAwareness, []string{
		"您說「不由自主」...能說說最近一次這樣的情況是什麼時候嗎？當時您的感受是什麼？",
		"您提到「下意識」的反應...上次發生時，您記得當下的情緒或身體感覺嗎？",
		"當您說「想都不想」就反應...能分享一下具體是在什麼情況下發生的嗎？",
	}},

	// exploring
	{models.PhaseExploring, models.TechniqueSensation, []string{
		"這個感覺如果有形狀，會是什麼樣子？",
		"如果這個感受有重量，是輕的還是重的？",
		"這種感覺讓您想到什麼東西？動物、植物或物品？",
	}},
	{models.PhaseExploring, models.TechniqueContrast, []string{
		"和平常比起來，這種感覺有什麼不同？",
		"您記得上次有類似感覺是什麼時候嗎？",
		"如果沒有這個感覺的話，您覺得會是什麼樣子？",
	}},
	{models.PhaseExploring, models.TechniquePatternExploration, []string{
		"這個「每次都」的反應...能說說最近一次發生的具體情況嗎？當時在哪裡、和誰在一起？",
		"您提到「一...就...」的模式...想想看上次發生時，那個瞬間您的身體和情緒有什麼變化？",
		"這個習慣性的反應...能分享一下最印象深刻的一次是什麼時候發生的嗎？",
	}},
	{models.PhaseExploring, models.TechniqueTriggerAwareness, []string{
		"您說「一生氣就」...能說說最近一次生氣的情況嗎？當時發生了什麼事？",
		"「一聽到就」這樣反應...想想看上次是聽到什麼、在什麼情況下？當時您的感受如何？",
		"這個「觸發」的情況...能分享一下具體的時間、地點和發生的事情嗎？",
	}},

	// childhood
	{models.PhaseChildhood, models.TechniqueGentle, []string{
		"想像小時候的您...那個小孩現在需要什麼？",
		"如果您可以抱抱小時候的自己，會想說什麼？",
		"那個小小孩最害怕什麼？最希望什麼？",
	}},
	{models.PhaseChildhood, models.TechniqueSafe, []string{
		"在一個完全安全的地方...小時候的您最想做什麼？",
		"如果有一個魔法可以保護小時候的您...會是什麼樣的魔法？",
	}},
	{models.PhaseChildhood, models.TechniqueEarlyPatterns, []string{
		"這個「總是」的反應模式...想想看您小時候，在什麼情況下也會有類似的反應？",
		"您提到的這個習慣...回想一下，小時候您是在什麼樣的環境中學會這樣反應的？",
		"這個「自動」的模式...想想看小時候，當時這樣反應是為了保護什麼或得到什麼？",
	}},
	{models.PhaseChildhood, models.TechniqueProtectivePatterns, []string{
		"想起小時候「馬上就」這樣反應的情況...能說說當時發生了什麼事嗎？那時您多大？",
		"這個「每次都」的模式...回到童年，您記得第一次這樣反應是在什麼情況下嗎？",
	}},

	// healing
	{models.PhaseHealing, models.TechniqueStrength, []string{
		"現在感受一下...您內在有什麼力量？",
		"這個過程中，您發現自己有什麼珍貴的品質？",
		"如果要給現在的自己一句話...會是什麼？",
	}},
	{models.PhaseHealing, models.TechniqueIntegration, []string{
		"現在的您和剛開始有什麼不同？",
		"這個體驗帶給您什麼禮物？",
		"您想對一路陪伴的自己說什麼？",
	}},
	{models.PhaseHealing, models.TechniquePatternTransformation, []string{
		"現在您覺察到這個「總是」的模式...您想給它什麼新的選擇？",
		"這個曾經保護您的習慣...現在您想對它說什麼感謝的話？",
		"感受一下...如果這個自動反應可以變得更溫柔，會是什麼樣子？",
	}},
	{models.PhaseHealing, models.TechniqueConsciousChoice, []string{
		"現在您有了覺察...下次遇到類似情況，您想要怎麼呼吸？",
		"這個新的覺察...讓您對自己有什麼不同的感受？",
		"如果可以給這個舊模式一個新的、更慈愛的版本...會是什麼？",
	}},
}

// deepenPhrases are the static replies used to break a loop by inviting the next layer.
var deepenPhrases = map[models.Phase][]string{
	models.PhaseInitial: {
		"我感受到您提到的這些，讓我們深入一點...這種感覺在您身體的哪個部位？",
		"您剛才分享的體驗很重要。現在閉上眼睛，這個感受是什麼樣的？",
		"讓我們暫停一下，深呼吸...現在注意您內在真正的感受是什麼？",
	},
	models.PhaseExploring: {
		"這種身體的感覺...讓您想起什麼時候曾經有過類似的體驗？",
		"當您感受到這些的時候，有沒有想起過去某個時刻？",
		"這個感受...彷彿帶您回到了什麼時候？",
	},
	models.PhaseChildhood: {
		"現在對那個小小孩，您想要給他/她什麼？",
		"如果您可以擁抱那個小時候的自己，會是什麼感覺？",
		"您想對那個受傷的小孩說些什麼溫暖的話？",
	},
	models.PhaseHealing: {
		"感受一下您內在的力量，現在有什麼新的體驗？",
		"經過這個過程，您對自己有什麼新的發現？",
		"現在深呼吸，感受這個療癒帶給您的禮物是什麼？",
	},
}

var nextStageGuidance = map[models.Phase]string{
	models.PhaseInitial: `引導用戶從表面事件深入到身體感受和情緒體驗：
- 詢問身體哪個部位有感覺
- 邀請關注內在的情緒狀態
- 從"發生什麼"轉向"感受什麼"`,
	models.PhaseExploring: `引導用戶從當下感受連結到過去經驗：
- 溫和詢問是否想起過去類似感受
- 邀請探索童年是否有相似體驗
- 從"現在感受"轉向"過去記憶"`,
	models.PhaseChildhood: `引導用戶從童年創傷走向療癒整合：
- 邀請給內在小孩愛與關懷
- 詢問想對小時候的自己說什麼
- 從"過去傷痛"轉向"療癒行動"`,
	models.PhaseHealing: `深化療癒體驗和自我整合：
- 邀請感受內在力量的成長
- 詢問這個過程帶來的禮物
- 從"個別療癒"轉向"整體覺察"`,
}
