package transcribe

import (
	"fmt"
	"strings"

	"github.com/sesly/sesly-engine/internal/ipc"
)

// PromptInput selects the speaker-attribution block of the segment prompt.
// Priority: timeline > single-speaker hint > participant list > blind
// diarization.
type PromptInput struct {
	Participants []string
	TimelineHint string
	SpeakerHint  string
	Platform     string
}

// BuildPrompt assembles the Turkish transcription prompt for one segment.
// On Meet the visual timeline is DOM guesswork, so its block asks the model
// to treat it as a reference and trust audio analysis on conflict; on Zoom
// and Teams the platform reports speaking state itself and the timeline is
// presented as authoritative.
func BuildPrompt(in PromptInput) string {
	var instr strings.Builder

	switch {
	case in.TimelineHint != "":
		if len(in.Participants) > 0 {
			fmt.Fprintf(&instr, "**KATILIMCI LİSTESİ:** %s\n", strings.Join(in.Participants, ", "))
		}
		if in.Platform == ipc.PlatformMeet {
			fmt.Fprintf(&instr, hybridTimelineBlock, in.TimelineHint)
		} else {
			fmt.Fprintf(&instr, authoritativeTimelineBlock, in.TimelineHint)
		}
	case in.SpeakerHint != "":
		fmt.Fprintf(&instr, knownSpeakerBlock, in.SpeakerHint)
	case len(in.Participants) > 0:
		fmt.Fprintf(&instr, participantListBlock, strings.Join(in.Participants, ", "))
	default:
		instr.WriteString(blindDiarizationBlock)
	}

	return fmt.Sprintf(segmentPromptTemplate, instr.String())
}

const hybridTimelineBlock = `
**GÖRSEL İPUÇLARI (Referans - Doğrulama Gerekebilir):**
Aşağıdaki görsel tespitler yapıldı ancak MUTLAK DEĞİLDİR:
%s

**HİBRİT DİARİZATİON TALİMATI:**
1. Yukarıdaki görsel ipuçlarını REFERANS olarak kullan
2. AYRICA ses karakteristiklerinden (ses tonu, tempo, aksan) konuşmacıları ayırt et
3. Eğer görsel ipucu ile ses analizi ÇELİŞİRSE, SES ANALİZİNE güven
4. Konuşmacı değişimlerinde ses tonu/tempo farklılıklarına dikkat et
5. Katılımcı listesindeki isimleri MUTLAKA kullan, "Konuşmacı 1" gibi genel etiketler kullanma
`

const authoritativeTimelineBlock = `
**GÖRSEL ZAMAN ÇİZELGESİ (KESİN BİLGİ):**
Toplanti sirasindaki görsel tespitler aşağidadir. Lütfen bu akisi takip et:
%s

TALİMAT: Yukaridaki zaman çizelgesine bak. Ses kaydindaki konuşmalari bu sirayla eşleştir.
Örn: 00:10'da Ahmet konuşmaya başladiysa, o saniyedeki sesi Ahmet'e yaz.
`

const knownSpeakerBlock = `
**BİLİNEN KONUŞMACI:** Bu segmentte konuşan kişi büyük ihtimalle: **%s**
Lütfen transkriptte konuşmayı bu kişiye atfet.
`

const participantListBlock = `
**KATILIMCI LİSTESİ:** Toplantıda şu kişiler var: %s
Lütfen konuşmayı bu kişilerle eşleştirmeye çalış.
Eğer konuşmacı ismini söylerse (ör: "Ben Ahmet") veya başkası hitap ederse (ör: "Söz senin Ayşe") bu ipuçlarını KESİNLİKLE kullan.
AYRICA: Birisine soru sorulursa (ör: "Samet şu işi yaptın mı?") ve hemen ardından biri cevap verirse, o konuşan kişinin sorulan kişi (Samet) olduğunu varsay.
`

const blindDiarizationBlock = `
**TALİMAT:**
1. Konuşmacıları ayırt et (Speaker Diarization).
2. **ÖNEMLİ:** Konuşma içeriğindeki ipuçlarını (ör: "Ben Oktay", "Merhaba Ali bey") kullanarak gerçek isimleri bul.
3. İsim bulamazsan 'Konuşmacı 1', 'Konuşmacı 2' etiketlerini kullan.
`

const segmentPromptTemplate = `
Bu bir Türkçe toplantı ses kaydıdır. Lütfen konuşmacı diarization (konuşmacı ayrımı) yaparak transkript oluştur.

%s


**KRİTİK - SESSİZLİK KONTROLÜ:**
- Eğer ses kaydında HİÇ KONUŞMA YOKSA veya sadece arka plan gürültüsü varsa, SADECE "[KONUŞMA YOK]" yaz ve başka hiçbir şey yazma.
- HALLÜSINASYON YAPMA! Eğer bir konuşma duymuyorsan, içerik UYDURMA.
- Sessizlik, arka plan müziği veya belirsiz sesler varsa sadece "[KONUŞMA YOK]" döndür.

**ÖNEMLİ:**
- Zaman etiketi EKLEME
- Dolgu kelimelerini (eee, ııı, hmmm) temizle
- Sadece transkript döndür, açıklama yapma
- Her konuşma bloğunu yeni satırda başlat
- **KRİTİK:** ASLA "Siz:", "Sen:", "Ben:", "Konuşmacı:" gibi genel etiketler kullanma.
- KESİNLİKLE "Bilinmeyen Konuşmacı" etiketini kullanma. Eğer ismi bilmiyorsan, listeden en mantıklı kişiyi ata veya "Konuşmacı X" de.
- "Siz" kelimesini konuşmacı adı olarak ASLA kullanma.
- Müzik veya gürültü varsa [MÜZİK] veya [GÜRÜLTÜ] yaz.
`

// TimelineHint renders the visual speaker detections falling inside the
// segment window [start, start+duration] as "- MM:SS: name, name" lines, the
// clock relative to segment start. Consecutive entries with an identical
// speaker set collapse into one line. Falls back to the activity log when
// the timeline file has no matching entries. Returns "" when nothing
// matches.
func TimelineHint(store *ipc.Store, start, duration float64) string {
	end := start + duration
	entries := store.TimelineRange(start, end)
	if len(entries) == 0 {
		for _, a := range store.Activity() {
			if a.Timestamp >= start && a.Timestamp <= end {
				entries = append(entries, ipc.TimelineEntry{Ts: a.Timestamp, Speakers: a.Speakers})
			}
		}
	}

	var lines []string
	var last []string
	for _, e := range entries {
		if len(e.Speakers) == 0 || equalSpeakers(e.Speakers, last) {
			continue
		}
		rel := int(e.Ts - start)
		if rel < 0 {
			rel = 0
		}
		lines = append(lines, fmt.Sprintf("- %02d:%02d: %s", rel/60, rel%60, strings.Join(e.Speakers, ", ")))
		last = e.Speakers
	}
	return strings.Join(lines, "\n")
}

func equalSpeakers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SummaryPrompt builds the mid-meeting "Ara Özet Raporu" prompt from the
// transcript tail.
func SummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryPromptTemplate, tailRunes(transcript, 15000))
}

const summaryPromptTemplate = `Aşağıdaki toplantı transkriptini analiz et ve profesyonel bir "Ara Özet Raporu" oluştur.

Rapor Formatı şu şekilde olmalı:

📋 **TOPLANTI ÖZETİ**

**📌 Gündem/Konu:**
(Toplantının ana konusunu 1 cümle ile yaz)

**🗣️ Konuşulan Ana Başlıklar:**
* (Madde madde önemli tartışma noktaları)
* ...

**✅ Alınan Kararlar (Varsa):**
* (Varsa netleşen kararlar, yoksa "Henüz karar alınmadı" yaz)

**📝 Aksiyonlar/Görevler (Varsa):**
* (Kim ne yapacak? Örn: "Ahmet: Raporu hazırlayacak")

---
**Transkript:**
%s`
